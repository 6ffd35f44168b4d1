package cloudevents

// CloudEvents extension attribute names
const (
	ExtCorrelationID = "wmscorrelationid"
	ExtCommandID     = "wmscommandid"
	ExtWarehouseID   = "wmswarehouseid"
	ExtTraceParent   = "traceparent"
	ExtTraceState    = "tracestate"
)

// HeaderPrefix is prepended to attribute names in binary content mode headers
const HeaderPrefix = "ce-"

// Headers returns the binary content mode headers for the event
func (e *WMSCloudEvent) Headers() map[string]string {
	headers := map[string]string{
		HeaderPrefix + "specversion": e.SpecVersion,
		HeaderPrefix + "type":        e.Type,
		HeaderPrefix + "source":      e.Source,
		HeaderPrefix + "id":          e.ID,
		"content-type":               e.DataContentType,
	}

	set := func(name, value string) {
		if value != "" {
			headers[HeaderPrefix+name] = value
		}
	}
	set("subject", e.Subject)
	set(ExtCorrelationID, e.CorrelationID)
	set(ExtCommandID, e.CommandID)
	set(ExtWarehouseID, e.WarehouseID)
	set(ExtTraceParent, e.TraceParent)
	set(ExtTraceState, e.TraceState)

	return headers
}

// ApplyHeader copies an extension header value onto the event. Unknown headers are ignored.
func (e *WMSCloudEvent) ApplyHeader(key, value string) {
	switch key {
	case HeaderPrefix + ExtCorrelationID:
		e.CorrelationID = value
	case HeaderPrefix + ExtCommandID:
		e.CommandID = value
	case HeaderPrefix + ExtWarehouseID:
		e.WarehouseID = value
	case HeaderPrefix + ExtTraceParent:
		e.TraceParent = value
	case HeaderPrefix + ExtTraceState:
		e.TraceState = value
	}
}
