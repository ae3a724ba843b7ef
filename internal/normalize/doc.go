// Package normalize maps raw listing payloads into canonical records.
//
// Field parsing is delegated to an Extractor chosen by the payload's content
// type. Extractors return a loosely typed model.Fields map; the Normalizer
// coerces those values into a model.Record, parses display prices, resolves
// relative URLs and assigns the identity key. Dynamic payload shapes never
// leak past this package.
//
// Two extractors are provided:
//
//   - JSONExtractor reads a listing JSON object and accepts both snake_case
//     and camelCase field names.
//   - HTMLExtractor reads a listing card or detail page using data-testid
//     selectors, falling back to class-name heuristics.
package normalize
