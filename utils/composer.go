package utils

import (
	"context"
	"strings"

	"leadpilot/models"
)

// aiFailureMarker in generated text means the generator reported a failure
// inside its answer instead of producing a message.
const aiFailureMarker = "Error"

// Composition holds the texts attached to a lead before dispatch.
type Composition struct {
	Outreach   string
	Followup   string
	LeadMagnet string
}

// Composer picks a template per niche and optionally lets a text generator
// write the outreach message instead.
type Composer struct {
	generator TextGenerator
}

// NewComposer accepts a nil generator, in which case only templates are used.
func NewComposer(generator TextGenerator) *Composer {
	return &Composer{generator: generator}
}

// Compose never fails: any generator problem keeps the static template.
func (c *Composer) Compose(ctx context.Context, lead models.Lead) Composition {
	tpl := templateFor(lead.Niche)
	fill := strings.NewReplacer("{name}", lead.Name)

	out := Composition{
		Outreach:   fill.Replace(tpl.Outreach),
		Followup:   fill.Replace(tpl.Followup),
		LeadMagnet: tpl.LeadMagnet,
	}

	if c.generator == nil || !SnippetUsable(lead.WebsiteSnippet) {
		return out
	}

	generated, err := c.generator.Analyze(ctx, lead.Name, lead.Category, lead.WebsiteSnippet)
	switch {
	case err != nil:
		Logger("composer").WithError(err).WithField("lead", lead.Name).Warn("AI generation failed, keeping template")
	case strings.Contains(generated, aiFailureMarker), strings.TrimSpace(generated) == "":
		Logger("composer").WithField("lead", lead.Name).Warn("AI returned an unusable message, keeping template")
	default:
		out.Outreach = generated
	}
	return out
}

// Apply composes and stores the texts on the lead.
func (c *Composer) Apply(ctx context.Context, lead *models.Lead) {
	comp := c.Compose(ctx, *lead)
	lead.Message = comp.Outreach
	lead.FollowupMessage = comp.Followup
	lead.LeadMagnet = comp.LeadMagnet
}
