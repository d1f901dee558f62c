// Package result interprets values pushed by a template host.
//
// Every subscription key belongs to one of two families:
//
//   - Boolean-semantic (the default): the template renders a condition and the
//     pushed value is parsed into a bool.
//   - String-semantic: the template renders free text or JSON. Keys in this
//     family start with one of the prefixes in StringPrefixes.
//
// # String-Semantic Results
//
// ParseBoolean always reports true for string-semantic keys. The bool means
// "the template evaluated", not "the condition holds". Content changes for
// these keys are detected by comparing Stringify output, never through the
// bool.
package result
