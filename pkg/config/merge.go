package config

// mergeBlock flattens a default into a block: every unset property of
// the block takes the default's value. Identity fields (name, type,
// inherit, separator) always come from the block itself. Lists
// (show_if_matches, replace, ramp) are taken wholesale from whichever
// tier sets them; they are not concatenated.
func mergeBlock(def, b Block) Block {
	out := b
	if out.Value == "" {
		out.Value = def.Value
	}
	if out.Foreground == "" {
		out.Foreground = def.Foreground
	}
	if out.Background == "" {
		out.Background = def.Background
	}
	if len(out.ShowIfMatches) == 0 {
		out.ShowIfMatches = def.ShowIfMatches
	}
	if len(out.Replace) == 0 {
		out.Replace = def.Replace
		out.ReplaceFirstMatch = def.ReplaceFirstMatch
	}
	if out.Popup == "" {
		out.Popup = def.Popup
	}
	if out.PopupValue == "" {
		out.PopupValue = def.PopupValue
	}
	if out.PopupDwell.Duration == 0 {
		out.PopupDwell = def.PopupDwell
	}
	if out.NumberKind == "" {
		out.NumberKind = def.NumberKind
	}
	if len(out.Ramp) == 0 {
		out.Ramp = def.Ramp
	}
	if out.OutputFormat == "" {
		out.OutputFormat = def.OutputFormat
	}
	if out.VariantsSeparator == "" {
		out.VariantsSeparator = def.VariantsSeparator
	}
	if out.ActiveFormat == "" {
		out.ActiveFormat = def.ActiveFormat
	}
	if out.OnMouseLeft == "" {
		out.OnMouseLeft = def.OnMouseLeft
	}
	if out.OnMouseMiddle == "" {
		out.OnMouseMiddle = def.OnMouseMiddle
	}
	if out.OnMouseRight == "" {
		out.OnMouseRight = def.OnMouseRight
	}
	if out.OnScrollUp == "" {
		out.OnScrollUp = def.OnScrollUp
	}
	if out.OnScrollDown == "" {
		out.OnScrollDown = def.OnScrollDown
	}
	return out
}
