package connectivity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mindconnect/mcl-go/core"
	"github.com/mindconnect/mcl-go/httpengine"
	"github.com/mindconnect/mcl-go/mclerr"
	"github.com/mindconnect/mcl-go/mclmetrics"
	"github.com/mindconnect/mcl-go/request"
)

const (
	exchangePath = "/api/mindconnect/v3/exchange"
	mappingPath  = "/api/mindconnect/v3/dataPointMappings"
)

// Client assembles and sends upload items over an onboarded identity
// context's shared HTTP engine.
type Client struct {
	core               *core.Core
	maxHTTPPayloadSize int
	log                *slog.Logger
}

// New builds a connectivity Client bound to identity, honoring its
// configured upload-payload budget and sharing its logger.
func New(identity *core.Core) *Client {
	return &Client{core: identity, maxHTTPPayloadSize: identity.GetMaxHTTPPayloadSize(), log: identity.GetLogger()}
}

func (c *Client) composer() request.Composer {
	token, _ := c.core.GetLastAccessToken()
	return request.Composer{Engine: c.core.GetHTTPClient(), UserAgent: "mcl-go"}.WithBearer(token)
}

// groupTimeseries merges value lists sharing a configuration_id into a
// single Timeseries item, one output item per configuration_id, per
// §4.G's grouping rule.
func groupTimeseries(items []Timeseries) []Timeseries {
	order := []string{}
	byConfig := map[string]*Timeseries{}
	for _, item := range items {
		existing, ok := byConfig[item.ConfigurationID]
		if !ok {
			copyItem := Timeseries{ConfigurationID: item.ConfigurationID}
			byConfig[item.ConfigurationID] = &copyItem
			existing = &copyItem
			order = append(order, item.ConfigurationID)
		}
		existing.ValueLists = append(existing.ValueLists, item.ValueLists...)
	}
	grouped := make([]Timeseries, 0, len(order))
	for _, id := range order {
		grouped = append(grouped, *byConfig[id])
	}
	return grouped
}

// buildEnvelope serializes non-file items into one mixed-content body,
// returning mclerr.LimitExceeded if the assembled envelope exceeds the
// configured budget (file items are uploaded separately via UploadFile's
// range state machine and never pass through this path).
func (c *Client) buildEnvelope(items []Item) ([]byte, error) {
	w := newEnvelopeWriter()
	for _, item := range items {
		meta, contentType, payload, err := encodeItem(item)
		if err != nil {
			return nil, err
		}
		if err := w.writePart(contentType, meta, payload); err != nil {
			return nil, err
		}
	}
	body := w.finish()
	if c.maxHTTPPayloadSize > 0 && len(body) > c.maxHTTPPayloadSize {
		return nil, mclerr.New(mclerr.LimitExceeded, fmt.Sprintf("assembled envelope of %d bytes exceeds max_http_payload_size %d", len(body), c.maxHTTPPayloadSize))
	}
	return body, nil
}

func encodeItem(item Item) (partMeta, string, []byte, error) {
	switch item.Kind {
	case KindTimeseries:
		ts := item.Timeseries
		payload, err := json.Marshal(ts)
		if err != nil {
			return partMeta{}, "", nil, mclerr.Wrap(mclerr.Fail, "marshal timeseries item", err)
		}
		return partMeta{Type: string(KindTimeseries), ConfigurationID: ts.ConfigurationID}, "application/json", payload, nil

	case KindEvent:
		ev := item.Event
		payload, err := json.Marshal(ev)
		if err != nil {
			return partMeta{}, "", nil, mclerr.Wrap(mclerr.Fail, "marshal event item", err)
		}
		return partMeta{Type: string(KindEvent), Version: ev.Version}, "application/json", payload, nil

	case KindDataSourceConfig:
		ds := item.DataSourceConfig
		payload, err := json.Marshal(ds)
		if err != nil {
			return partMeta{}, "", nil, mclerr.Wrap(mclerr.Fail, "marshal data source configuration item", err)
		}
		return partMeta{Type: string(KindDataSourceConfig), Version: ds.Version}, "application/json", payload, nil

	case KindCustomData:
		cd := item.CustomData
		return partMeta{Type: string(KindCustomData), Version: cd.Version}, "application/octet-stream", cd.Payload, nil

	default:
		return partMeta{}, "", nil, mclerr.New(mclerr.InvalidParameter, fmt.Sprintf("connectivity: unsupported item kind %q for the mixed-content envelope", item.Kind))
	}
}

// Exchange groups timeseries items by configuration_id, assembles every
// non-file item into one mixed-content envelope, and POSTs it. File items
// must be uploaded via UploadFile instead.
func (c *Client) Exchange(ctx context.Context, timeseries []Timeseries, events []Event, configs []DataSourceConfig, customData []CustomData) error {
	c.log.Debug("connectivity exchange entry", "timeseries", len(timeseries), "events", len(events),
		"data_source_configs", len(configs), "custom_data", len(customData))
	items := make([]Item, 0, len(timeseries)+len(events)+len(configs)+len(customData))
	for _, ts := range groupTimeseries(timeseries) {
		ts := ts
		items = append(items, Item{Kind: KindTimeseries, Timeseries: &ts})
	}
	for i := range events {
		items = append(items, Item{Kind: KindEvent, Event: &events[i]})
	}
	for i := range configs {
		items = append(items, Item{Kind: KindDataSourceConfig, DataSourceConfig: &configs[i]})
	}
	for i := range customData {
		items = append(items, Item{Kind: KindCustomData, CustomData: &customData[i]})
	}
	if len(items) == 0 {
		return nil
	}

	body, err := c.buildEnvelope(items)
	if err != nil {
		mclmetrics.UploadsTotal.WithLabelValues("exchange", mclerr.Of(err).String()).Inc()
		return err
	}

	_, err = c.composer().Send(ctx, &httpengine.Request{
		Method:    httpengine.MethodPost,
		URL:       c.core.GetHostName() + exchangePath,
		Operation: "exchange",
		BodyKind:  httpengine.BodyInMemory,
		InMemory:  body,
		Headers:   []httpengine.Header{{Name: "Content-Type", Value: envelopeContentType()}},
	}, false)
	mclmetrics.UploadsTotal.WithLabelValues("exchange", mclerr.Of(err).String()).Inc()
	c.log.Debug("connectivity exchange leave", "error", err)
	return err
}

// CreateMapping posts a single data-point mapping to its own endpoint, a
// simpler JSON body rather than the mixed-content envelope (§4.G).
func (c *Client) CreateMapping(ctx context.Context, mapping Mapping) error {
	c.log.Debug("connectivity create_mapping entry", "data_point_id", mapping.DataPointID)
	body, err := json.Marshal(mapping)
	if err != nil {
		return mclerr.Wrap(mclerr.Fail, "marshal mapping", err)
	}
	_, err = c.composer().Send(ctx, &httpengine.Request{
		Method:    httpengine.MethodPost,
		URL:       c.core.GetHostName() + mappingPath,
		Operation: "create_mapping",
		BodyKind:  httpengine.BodyInMemory,
		InMemory:  body,
		Headers:   []httpengine.Header{{Name: "Content-Type", Value: "application/json"}},
	}, false)
	mclmetrics.UploadsTotal.WithLabelValues("mapping", mclerr.Of(err).String()).Inc()
	c.log.Debug("connectivity create_mapping leave", "error", err)
	return err
}
