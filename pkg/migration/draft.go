package migration

import (
	"time"

	"github.com/Sternrassler/storefront-edge/pkg/client"
)

// OptionSelection is one option choice of a line item. Exactly one concrete kind applies:
// ValueSelection, NumberSelection, TextSelection, DateSelection or BareSelection.
type OptionSelection interface {
	isOptionSelection()
}

// ValueSelection picks a value of a choice option.
type ValueSelection struct {
	OptionID      int64
	OptionValueID int64
}

// NumberSelection fills a number option.
type NumberSelection struct {
	OptionID int64
	Number   float64
}

// TextSelection fills a text option.
type TextSelection struct {
	OptionID int64
	Text     string
}

// DateSelection fills a date option. Date is in UTC.
type DateSelection struct {
	OptionID int64
	Date     time.Time
}

// BareSelection names an option without a value.
type BareSelection struct {
	OptionID int64
}

func (ValueSelection) isOptionSelection()  {}
func (NumberSelection) isOptionSelection() {}
func (TextSelection) isOptionSelection()   {}
func (DateSelection) isOptionSelection()   {}
func (BareSelection) isOptionSelection()   {}

// LineItemDraft is a channel-agnostic cart line.
type LineItemDraft struct {
	ProductID        int64
	VariantID        *int64
	Quantity         int
	OptionSelections []OptionSelection
}

// SkipReason says why a line item was left out of a migration.
type SkipReason string

const (
	SkipMissingProduct  SkipReason = "missing_product_id"
	SkipMissingQuantity SkipReason = "missing_quantity"
)

// SkippedItem records a cart line that could not be drafted.
type SkippedItem struct {
	LineItemID string
	Reason     SkipReason
}

// BuildDrafts drafts every physical and digital item of cart, in that order. Items without
// a product id or a positive quantity are skipped and reported, never treated as errors.
func BuildDrafts(cart *client.Cart) ([]LineItemDraft, []SkippedItem) {
	if cart == nil {
		return nil, nil
	}

	var (
		drafts  []LineItemDraft
		skipped []SkippedItem
	)
	for _, item := range cart.Items() {
		draft, reason, ok := draftFromItem(item)
		if !ok {
			skipped = append(skipped, SkippedItem{LineItemID: item.EntityID, Reason: reason})
			continue
		}
		drafts = append(drafts, draft)
	}
	return drafts, skipped
}

func draftFromItem(item client.CartItem) (LineItemDraft, SkipReason, bool) {
	if item.ProductEntityID == nil {
		return LineItemDraft{}, SkipMissingProduct, false
	}
	if item.Quantity == nil || *item.Quantity <= 0 {
		return LineItemDraft{}, SkipMissingQuantity, false
	}

	draft := LineItemDraft{
		ProductID: *item.ProductEntityID,
		Quantity:  *item.Quantity,
	}
	if item.VariantEntityID != nil {
		v := *item.VariantEntityID
		draft.VariantID = &v
	}
	for _, opt := range item.SelectedOptions {
		draft.OptionSelections = append(draft.OptionSelections, selectionFromOption(opt))
	}
	return draft, "", true
}

// selectionFromOption picks the kind by the first populated field.
func selectionFromOption(opt client.SelectedOption) OptionSelection {
	switch {
	case opt.ValueEntityID != nil:
		return ValueSelection{OptionID: opt.EntityID, OptionValueID: *opt.ValueEntityID}
	case opt.Number != nil:
		return NumberSelection{OptionID: opt.EntityID, Number: *opt.Number}
	case opt.Text != nil:
		return TextSelection{OptionID: opt.EntityID, Text: *opt.Text}
	case opt.Date != nil:
		return DateSelection{OptionID: opt.EntityID, Date: opt.Date.UTC.UTC()}
	default:
		return BareSelection{OptionID: opt.EntityID}
	}
}

// ToInputs converts drafts into createCart line items. Bare selections carry no value the
// upstream accepts and are dropped; the count of dropped selections is returned.
func ToInputs(drafts []LineItemDraft) ([]client.CartLineItemInput, int) {
	inputs := make([]client.CartLineItemInput, 0, len(drafts))
	dropped := 0

	for _, d := range drafts {
		in := client.CartLineItemInput{
			ProductEntityID: d.ProductID,
			VariantEntityID: d.VariantID,
			Quantity:        d.Quantity,
		}

		opts := &client.SelectedOptionsInput{}
		for _, sel := range d.OptionSelections {
			switch s := sel.(type) {
			case ValueSelection:
				opts.MultipleChoices = append(opts.MultipleChoices, client.MultipleChoiceInput{OptionEntityID: s.OptionID, OptionValueEntityID: s.OptionValueID})
			case NumberSelection:
				opts.NumberFields = append(opts.NumberFields, client.NumberFieldInput{OptionEntityID: s.OptionID, Number: s.Number})
			case TextSelection:
				opts.TextFields = append(opts.TextFields, client.TextFieldInput{OptionEntityID: s.OptionID, Text: s.Text})
			case DateSelection:
				opts.DateFields = append(opts.DateFields, client.DateFieldInput{OptionEntityID: s.OptionID, Date: s.Date})
			case BareSelection:
				dropped++
			}
		}
		if !opts.IsEmpty() {
			in.SelectedOptions = opts
		}
		inputs = append(inputs, in)
	}
	return inputs, dropped
}
