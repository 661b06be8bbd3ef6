package orchestrator

import "context"

// Selector picks the model for an auto-mode text query.
type Selector func(ctx context.Context, query string) (string, error)

// ConstantSelector always answers with the same model. It is the default for auto mode.
func ConstantSelector(model string) Selector {
	return func(context.Context, string) (string, error) {
		return model, nil
	}
}

// selectModel applies the tier policy: image-only auto queries and the deep research
// and creative agents use the pro tier, other auto queries ask the selector.
func (o *Orchestrator) selectModel(ctx context.Context, query string, hasImage bool, mode AgentMode) (string, error) {
	switch mode {
	case AgentDeepResearch, AgentCreative:
		return o.cfg.ProModel, nil
	}
	if query == "" && hasImage {
		return o.cfg.ProModel, nil
	}
	return o.selector(ctx, query)
}

func (o *Orchestrator) chatModel(mode AgentMode) string {
	if mode == AgentCreative {
		return o.cfg.FlashModel
	}
	return o.cfg.ProModel
}
