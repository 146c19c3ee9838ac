// Package transparency makes the dialogue engine's work visible after the
// fact:
//
//   - Stage traces: which stages a turn ran, in what order, for how long
//   - Error classification: typed errors mapped to a category, an HTTP
//     status and remediation hints
//
// Nothing here changes routing; the router only reports into it.
package transparency
