package source

// RawRecord is one untrusted record as delivered by a source: raw column
// names mapped to raw string values. All validation happens downstream.
type RawRecord map[string]string

// Formats a source can deliver records in.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatAPI  = "api"
	FormatHTML = "html"
)

// Config describes one registered data source. It mirrors the source
// registry rows: funder, link to the dump, format, and the transport quirks
// (skip_ssl_verify for portals with broken certificate chains).
type Config struct {
	ID         string `yaml:"id"`
	Funder     string `yaml:"funder"`
	FunderID   string `yaml:"funder_id"`
	SourceName string `yaml:"source_name"`
	Country    string `yaml:"country"`
	Type       string `yaml:"type"`
	// Currency is the ISO 4217 default applied to records that carry an
	// amount but no currency column of their own.
	Currency   string `yaml:"currency"`
	WebLink    string `yaml:"web_link"`
	DataLink   string `yaml:"data_link"`
	Format     string `yaml:"format"`
	Notes      string `yaml:"notes"`

	// SkipSSLVerify is an explicit per-source opt-in; SSL failures are never
	// retried into silently-insecure transport without it.
	SkipSSLVerify bool `yaml:"skip_ssl_verify"`

	// Mapping is the declared raw-column -> canonical-field mapping. Columns
	// absent here may still be aligned by the LLM collaborator.
	Mapping map[string]string `yaml:"mapping"`
}
