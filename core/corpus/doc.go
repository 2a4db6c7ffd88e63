// Package corpus scans the practice's exported insurance billing files for
// patient identifiers. The export is a flat archive of delimited records in
// Windows-1252 encoding; each record line carries a numeric field tag followed
// by its value. The scanner never parses the full record structure. It
// byte-searches for tagged values and then extracts the strong patient code
// from a bounded window around the hit, which keeps a lookup in the low
// seconds even against a multi-year archive.
//
// Files can live on local disk or in an object-storage bucket; both backends
// implement the Source interface. The file list is loaded once per process
// and lookup results are cached for the process lifetime, since the archive
// only changes between quarterly exports.
package corpus
