// Package shell turns shell source text into an abstract syntax tree.
//
// Loosely follows the token recognition and grammar rules defined by
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html
//
// 1. Tokenize breaks the input into words, operators, keywords, redirections
// and substitutions. It never fails; malformed input degrades to words.
//
// 2. Parse builds a Command tree from the tokens with a recursive-descent
// grammar. Structural problems are reported as a *ParseError.
//
// Expansion and execution live in package interp; substitution bodies are
// kept as raw text here and parsed lazily when they are expanded.
package shell
