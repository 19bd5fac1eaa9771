package adapters

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Brownie44l1/fusion-api/internal/config"
	"github.com/Brownie44l1/fusion-api/internal/features"
	"github.com/Brownie44l1/fusion-api/internal/imaging"
	"github.com/Brownie44l1/fusion-api/internal/metrics"
	"github.com/Brownie44l1/fusion-api/internal/model"
)

// Registry holds the three loaded models. It is built once at startup and
// passed to whoever serves requests.
type Registry struct {
	Tabular *TabularAdapter
	Nail    *NailAdapter
	Retina  *RetinaAdapter

	sessions []*model.Session
}

// Load initializes the ONNX runtime, opens the three model sessions and
// reads the tabular feature schema.
func Load(cfg *config.Config) (*Registry, error) {
	if err := model.InitRuntime(cfg.ONNX.SharedLibraryPath); err != nil {
		return nil, err
	}

	r := &Registry{}
	fail := func(err error) (*Registry, error) {
		r.Close()
		return nil, err
	}

	schema, err := features.LoadSchema(cfg.Models.Tabular.Schema)
	if err != nil {
		return fail(err)
	}

	tabular, err := r.open("tabular", cfg.Models.Tabular.ModelConfig)
	if err != nil {
		return fail(err)
	}
	if got, want := tabular.Metadata.InputSize(), len(schema.ExpectedOrder); got != want {
		return fail(errors.Errorf("tabular model takes %d inputs but schema %s declares %d columns",
			got, schema.Version, want))
	}
	r.Tabular = NewTabularAdapter(tabular.Metadata.Name, tabular, schema)
	reportZeroFilled(r.Tabular)

	nail, err := r.open("nail", cfg.Models.Nail.ModelConfig)
	if err != nil {
		return fail(err)
	}
	norm, err := imaging.ParseNormalization(cfg.Models.Nail.Normalization)
	if err != nil {
		return fail(err)
	}
	nailLayout, err := imaging.ParseLayout(nail.Metadata.Layout)
	if err != nil {
		return fail(err)
	}
	r.Nail = NewNailAdapter(nail.Metadata.Name, nail, imageSize(nail.Metadata), nailLayout, norm)

	retina, err := r.open("retina", cfg.Models.Retina)
	if err != nil {
		return fail(err)
	}
	retinaLayout, err := imaging.ParseLayout(retina.Metadata.Layout)
	if err != nil {
		return fail(err)
	}
	r.Retina = NewRetinaAdapter(retina.Metadata.Name, retina, imageSize(retina.Metadata), retinaLayout)

	log.Info().
		Str("schema_version", schema.Version).
		Int("tabular_columns", len(schema.ExpectedOrder)).
		Str("nail_normalization", string(norm)).
		Strs("nail_classes", nail.Metadata.Classes).
		Msg("models loaded")
	return r, nil
}

func (r *Registry) open(fallbackName string, mc config.ModelConfig) (*model.Session, error) {
	metadata, err := model.LoadMetadata(mc.Metadata)
	if err != nil {
		return nil, errors.Wrapf(err, "%s model", fallbackName)
	}
	if metadata.Name == "" {
		metadata.Name = fallbackName
	}

	log.Info().Str("model", metadata.Name).Str("path", mc.Path).Msg("loading model")
	session, err := model.NewSession(mc.Path, metadata)
	if err != nil {
		return nil, err
	}
	r.sessions = append(r.sessions, session)
	return session, nil
}

func reportZeroFilled(a *TabularAdapter) {
	zero := a.ZeroFilled()
	metrics.Gauge("tabular.zero_filled_columns", float64(len(zero)), []string{"schema:" + a.SchemaVersion()})
	if len(zero) > 0 {
		log.Info().Str("model", a.Name()).Strs("columns", zero).Msg("tabular columns always sent as zero")
	}
}

func imageSize(m model.Metadata) int {
	if m.ImageSize > 0 {
		return m.ImageSize
	}
	return imaging.DefaultSize
}

// Close releases the sessions and the runtime.
func (r *Registry) Close() {
	for _, s := range r.sessions {
		s.Close()
	}
	r.sessions = nil
	model.DestroyRuntime()
}
