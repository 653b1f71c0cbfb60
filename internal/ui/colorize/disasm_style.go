package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// ListingStyleName is the chroma style registered for instruction listings.
const ListingStyleName = "sigga-listing"

// ListingDark is registered on package initialization.
var ListingDark = styles.Register(chroma.MustNewStyle(ListingStyleName, chroma.StyleEntries{
	chroma.Text:       "#FFFFFF",
	chroma.Background: "bg:#1e1e1e",
	chroma.Comment:    "#858585", // branch targets and symbols

	chroma.Keyword:       "#FFFFFF",
	chroma.KeywordPseudo: "#FFFFFF",
	chroma.NameFunction:  "#FFFFFF", // mnemonics tokenize as functions in nasm
	chroma.Name:          "#7C9C9D",
	chroma.NameBuiltin:   "#7C9C9D", // registers
	chroma.NameVariable:  "#7C9C9D",
	chroma.NameLabel:     "#FFD700",

	chroma.LiteralNumber:        "#FF5F87",
	chroma.LiteralNumberHex:     "#FF5F87",
	chroma.LiteralNumberInteger: "#FF5F87",

	chroma.Operator:    "#FFFFFF",
	chroma.Punctuation: "#FFFFFF",
	chroma.String:      "#EACD53",
}))
