package logger

// Standard field key constants for structured logging.
const (
	FieldComponent     = "component"
	FieldStreamID      = "stream_id"
	FieldStreamName    = "stream_name"
	FieldStreamKind    = "stream_kind"
	FieldEvent         = "event"
	FieldSource        = "source_id"
	FieldDestination   = "destination_id"
	FieldHighWaterMark = "high_water_mark"
	FieldBuffered      = "buffered"
	FieldReason        = "reason"
	FieldOperation     = "operation"
	FieldError         = "error"
)

// Fields builds a map[string]interface{} from alternating key-value pairs.
//
//	log.Debug("unpiped", logger.Fields(logger.FieldDestination, id))
func Fields(kvs ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kvs)/2)
	for i := 0; i < len(kvs)-1; i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields creates fields for an operation that failed.
func ErrorFields(op string, err error) map[string]interface{} {
	return map[string]interface{}{
		FieldOperation: op,
		FieldError:     err.Error(),
	}
}

// MergeWithError adds an error field to an existing map.
func MergeWithError(fields map[string]interface{}, err error) map[string]interface{} {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields[FieldError] = err.Error()
	return fields
}
