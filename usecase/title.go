package usecase

// TitleMaxLength is the number of characters kept when deriving a session title
const TitleMaxLength = 60

// DeriveTitle shortens text to TitleMaxLength characters, appending "..." when
// anything was cut.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= TitleMaxLength {
		return text
	}
	return string(runes[:TitleMaxLength]) + "..."
}
