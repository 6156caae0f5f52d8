// Package language normalizes the language codes carried on tasks.
//
// Target and source languages arrive as ISO codes, BCP 47 tags, or plain
// words ("burmese", "mm"). Everything is reduced to a canonical base code with
// golang.org/x/text so providers and storage see one spelling.
package language
