package shell

import "fmt"

// TokenType identifies the kind of a Token.
type TokenType int

const (
	TokWord TokenType = iota
	TokQuoted
	TokAssignment
	TokVariable
	TokCommandSub
	TokRedirect

	// Operators
	TokPipe
	TokAnd
	TokOr
	TokSemi
	TokNewline
	TokLParen
	TokRParen
	TokLBrace
	TokRBrace
	TokBang
	TokDoubleSemi

	// Keywords
	TokIf
	TokThen
	TokElif
	TokElse
	TokFi
	TokFor
	TokIn
	TokDo
	TokDone
	TokWhile
	TokUntil
	TokBreak
	TokContinue
	TokCase
	TokEsac
)

var tokenNames = map[TokenType]string{
	TokWord:       "word",
	TokQuoted:     "quoted word",
	TokAssignment: "assignment",
	TokVariable:   "variable",
	TokCommandSub: "command substitution",
	TokRedirect:   "redirection",
	TokPipe:       "|",
	TokAnd:        "&&",
	TokOr:         "||",
	TokSemi:       ";",
	TokNewline:    "newline",
	TokLParen:     "(",
	TokRParen:     ")",
	TokLBrace:     "{",
	TokRBrace:     "}",
	TokBang:       "!",
	TokDoubleSemi: ";;",
	TokIf:         "if",
	TokThen:       "then",
	TokElif:       "elif",
	TokElse:       "else",
	TokFi:         "fi",
	TokFor:        "for",
	TokIn:         "in",
	TokDo:         "do",
	TokDone:       "done",
	TokWhile:      "while",
	TokUntil:      "until",
	TokBreak:      "break",
	TokContinue:   "continue",
	TokCase:       "case",
	TokEsac:       "esac",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// keywords maps reserved words to their token types.
var keywords = map[string]TokenType{
	"if":       TokIf,
	"then":     TokThen,
	"elif":     TokElif,
	"else":     TokElse,
	"fi":       TokFi,
	"for":      TokFor,
	"in":       TokIn,
	"do":       TokDo,
	"done":     TokDone,
	"while":    TokWhile,
	"until":    TokUntil,
	"break":    TokBreak,
	"continue": TokContinue,
	"case":     TokCase,
	"esac":     TokEsac,
}

// IsKeyword reports whether the token is a reserved word.
func (t TokenType) IsKeyword() bool {
	return t >= TokIf && t <= TokEsac
}

// Token is a single lexical unit produced by Tokenize.
//
// Which fields are populated depends on Type:
//
//	TokWord, keywords  Text holds the literal text
//	TokQuoted          Parts holds the word parts
//	TokAssignment      Name and Value (raw, unexpanded) are set, Text holds the
//	                   full source text; Value may carry a [index] in Index
//	TokVariable        Text holds the variable expression
//	TokCommandSub      Text holds the raw body
//	TokRedirect        Redirect is set
type Token struct {
	Type     TokenType
	Text     string
	Name     string
	Index    string
	Value    string
	Append   bool
	Parts    []WordPart
	Redirect *Redirect
}

func (t Token) String() string {
	switch t.Type {
	case TokWord, TokVariable, TokCommandSub, TokAssignment:
		return t.Text
	case TokQuoted:
		return Word{Parts: t.Parts}.String()
	case TokRedirect:
		return t.Redirect.Kind.String()
	default:
		return t.Type.String()
	}
}

// word converts a word-like token into a Word.
func (t Token) word() Word {
	switch t.Type {
	case TokQuoted:
		return Word{Parts: t.Parts}
	case TokVariable:
		return Word{Parts: []WordPart{{Kind: Variable, Value: t.Text}}}
	case TokCommandSub:
		return Word{Parts: []WordPart{{Kind: CommandSub, Value: t.Text}}}
	case TokAssignment:
		return ParseWord(t.Text)
	default:
		return Word{Parts: []WordPart{{Kind: Literal, Value: t.Text}}}
	}
}

// isWordLike reports whether the token can be used as an argument word.
func (t Token) isWordLike() bool {
	switch t.Type {
	case TokWord, TokQuoted, TokVariable, TokCommandSub, TokAssignment:
		return true
	}
	return false
}
