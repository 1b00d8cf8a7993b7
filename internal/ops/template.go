package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/quire/internal/errors"
	"github.com/hpungsan/quire/internal/template"
)

// TemplateOutput describes the active template.
type TemplateOutput struct {
	Template *template.Template `json:"template"`
	Version  int                `json:"version"`
	Source   string             `json:"source"` // file path, or "builtin"
}

// TemplateShow returns the active template.
func (s *Service) TemplateShow() *TemplateOutput {
	return &TemplateOutput{
		Template: s.registry.Current(),
		Version:  s.registry.Version(),
		Source:   s.templateSource(),
	}
}

// TemplateReload re-reads the template source. A source that fails to load
// leaves the previous template active. Open sessions keep their snapshot
// until their next context build.
func (s *Service) TemplateReload(ctx context.Context) (*TemplateOutput, error) {
	if _, err := s.registry.Reload(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewTurnInterrupted(0, 1, err)
		}
		return nil, errors.NewInvalidRequest(fmt.Sprintf("template reload failed: %v", err))
	}
	return s.TemplateShow(), nil
}

// WatchTemplate starts reloading the template on file changes when enabled
// in config. The returned stop function is always safe to call.
func (s *Service) WatchTemplate(ctx context.Context) (func(), error) {
	if !s.cfg.WatchTemplate || s.cfg.TemplatePath == "" {
		return func() {}, nil
	}
	w, err := template.NewWatcher(s.cfg.TemplatePath, s.registry, s.logger.Named("template"))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, errors.NewInternal(err)
	}
	return w.Stop, nil
}

func (s *Service) templateSource() string {
	if s.cfg.TemplatePath == "" {
		return "builtin"
	}
	return s.cfg.TemplatePath
}
