// Package connectivity assembles uploadable items into the platform's
// mixed-content envelope and manages the chunked file-range upload
// sequence, the generalized Go sum type replacing the original's
// void-pointer item polymorphism.
package connectivity

// Kind discriminates the uploadable item shapes §3's data model lists.
type Kind string

const (
	KindTimeseries       Kind = "timeseries"
	KindEvent            Kind = "event"
	KindFile             Kind = "file"
	KindDataSourceConfig Kind = "dataSourceConfiguration"
	KindCustomData       Kind = "customData"
)

// Severity is an Event's severity tag.
type Severity string

const (
	SeverityError       Severity = "Error"
	SeverityWarning     Severity = "Warning"
	SeverityInformation Severity = "Information"
)

// DataPointValue is one reading within a Timeseries value list.
type DataPointValue struct {
	DataPointID string `json:"dataPointId"`
	Value       string `json:"value"`
	QualityCode string `json:"qualityCode"`
}

// TimeseriesValue is the set of readings recorded at one instant.
type TimeseriesValue struct {
	Timestamp string           `json:"timestamp"`
	Values    []DataPointValue `json:"values"`
}

// Timeseries is a value-list batch for one data source configuration.
type Timeseries struct {
	ConfigurationID string            `json:"-"`
	ValueLists      []TimeseriesValue `json:"values"`
}

// Event is a versioned business event.
type Event struct {
	Version      string                 `json:"-"`
	Type         string                 `json:"type"`
	Timestamp    string                 `json:"timestamp"`
	Severity     Severity               `json:"severity"`
	Description  string                 `json:"description"`
	CustomFields map[string]interface{} `json:"details,omitempty"`
}

// File is a versioned file upload; Content is streamed, never buffered
// whole, so range uploads can honor the payload-size budget.
type File struct {
	Version           string `json:"-"`
	LocalPath         string `json:"-"`
	RemoteName        string `json:"-"`
	Type              string `json:"-"`
	CreationTimestamp string `json:"-"`
	Content           FileReader
}

// FileReader abstracts the byte source backing a File item so tests can
// supply an in-memory reader without touching disk.
type FileReader interface {
	Read(p []byte) (n int, err error)
}

// DataPoint is one entry of a DataSourceConfig's data point list.
type DataPoint struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Unit        string                 `json:"unit"`
	Description string                 `json:"description"`
	CustomData  map[string]interface{} `json:"customData,omitempty"`
}

// DataSource is one source entry of a DataSourceConfig.
type DataSource struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	DataPoints  []DataPoint            `json:"dataPoints"`
	CustomData  map[string]interface{} `json:"customData,omitempty"`
}

// DataSourceConfig is a versioned data-source-configuration item.
type DataSourceConfig struct {
	Version     string       `json:"-"`
	ID          string       `json:"id"`
	DataSources []DataSource `json:"dataSources"`
}

// CustomData is a versioned opaque blob plus routing metadata.
type CustomData struct {
	Version string                 `json:"-"`
	Type    string                 `json:"-"`
	Fields  map[string]interface{} `json:"-"`
	Payload []byte                 `json:"-"`
}

// Mapping associates a data point with an asset/aspect property. It is
// posted to a dedicated endpoint, not folded into the mixed-content
// envelope (§4.G).
type Mapping struct {
	DataPointID     string `json:"dataPointId"`
	EntityID        string `json:"entityId,omitempty"`
	PropertySetName string `json:"propertySetName"`
	PropertyName    string `json:"propertyName"`
	KeepMapping     bool   `json:"keepMapping,omitempty"`
}

// Item is the sum type the assembler is a total function over.
type Item struct {
	Kind             Kind
	Timeseries       *Timeseries
	Event            *Event
	File             *File
	DataSourceConfig *DataSourceConfig
	CustomData       *CustomData
}
