package chat

import (
	"qualichat/pkg/agent"
	"qualichat/pkg/tool"
)

// Normalize folds a finished turn into one envelope. Rules fire in priority
// order and the first match wins, so exactly one UI action type is emitted:
//
//  1. a payment result renders the payment confirmation
//  2. a missing-field failure or a collected-info echo requests user info
//  3. a cart view renders the cart
//  4. a product sequence renders products, even when empty
//  5. anything else renders nothing
//
// An exhausted turn always maps to NONE regardless of the outcomes gathered
// before the cap was hit.
func Normalize(result agent.Result, sessionID string) Envelope {
	envelope := Envelope{
		Message:   result.Text,
		SessionID: sessionID,
		UIAction:  UIAction{Type: ActionNone},
	}
	if result.Exhausted {
		return envelope
	}

	for _, outcome := range result.Outcomes {
		if outcome.Payment != nil {
			envelope.UIAction = UIAction{Type: ActionRenderPayment, Data: outcome.Payment}
			return envelope
		}
	}

	if field, value, ok := requestedField(result.Outcomes); ok {
		envelope.UIAction = UIAction{
			Type: ActionRequestInfo,
			Data: RequestInfoData{Field: field, Value: value, FieldsNeeded: []string{field}},
		}
		return envelope
	}

	for _, outcome := range result.Outcomes {
		if outcome.Cart != nil {
			envelope.UIAction = UIAction{Type: ActionRenderCart, Data: outcome.Cart}
			return envelope
		}
	}

	for _, outcome := range result.Outcomes {
		if outcome.Products != nil {
			envelope.UIAction = UIAction{
				Type: ActionRenderProducts,
				Data: ProductsData{Products: outcome.Products},
			}
			return envelope
		}
	}

	return envelope
}

func requestedField(outcomes []tool.Outcome) (field, value string, ok bool) {
	for _, outcome := range outcomes {
		if outcome.Failure != nil && outcome.Failure.Kind == tool.FailureMissingField {
			return outcome.Failure.Field, "", true
		}
		if outcome.Info != nil {
			return outcome.Info.Field, outcome.Info.Value, true
		}
	}
	return "", "", false
}
