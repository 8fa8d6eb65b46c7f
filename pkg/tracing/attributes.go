package tracing

import "go.opentelemetry.io/otel/attribute"

// Attribute keys
const (
	// MCP tool attributes
	AttrMCPToolName     = "mcp.tool.name"
	AttrMCPToolStatus   = "mcp.tool.status"
	AttrMCPToolDuration = "mcp.tool.duration_ms"
	AttrMCPResultSize   = "mcp.result.size_bytes"

	// Calculation attributes
	AttrWallAreaSqFt  = "carbon.wall_area_sqft"
	AttrDeclaredUnits = "carbon.declared_units"
	AttrPostalCode    = "carbon.postal_code"
	AttrDistanceKm    = "carbon.distance_km"
	AttrTotalKgCO2e   = "carbon.total_kgco2e"

	// Distance estimation attributes
	AttrDistanceStrategy = "distance.strategy"
	AttrFallbackReason   = "distance.fallback_reason"

	// External service attributes
	AttrServiceName      = "upstream.service.name"
	AttrServiceOperation = "upstream.service.operation"
	AttrServiceURL       = "upstream.service.url"
	AttrServiceStatus    = "upstream.service.status"

	// Cache attributes
	AttrCacheType = "cache.type"
	AttrCacheHit  = "cache.hit"

	// Rate limiting attributes
	AttrRateLimitService = "ratelimit.service"
	AttrRateLimitWaitMs  = "ratelimit.wait_ms"

	// HTTP attributes
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"
	AttrHTTPPath       = "http.path"
	AttrHTTPSessionID  = "http.session_id"
	AttrHTTPRequestID  = "http.request_id"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// Tool status values
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Service names
const (
	ServiceNominatim = "nominatim"
	ServiceOSRM      = "osrm"
)

// Cache types
const (
	CacheTypeGeocode = "geocode"
	CacheTypeRoute   = "route"
)

// CalculationAttributes returns the inputs of a calculation.
func CalculationAttributes(wallAreaSqFt float64, postalCode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Float64(AttrWallAreaSqFt, wallAreaSqFt),
		attribute.String(AttrPostalCode, postalCode),
	}
}

// ServiceAttributes returns attributes for external service calls
func ServiceAttributes(service, operation, url string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrServiceName, service),
		attribute.String(AttrServiceOperation, operation),
		attribute.String(AttrServiceURL, url),
		attribute.Int(AttrServiceStatus, status),
	}
}

// CacheAttributes returns attributes for cache operations
func CacheAttributes(cacheType string, hit bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCacheType, cacheType),
		attribute.Bool(AttrCacheHit, hit),
	}
}

// ErrorAttributes returns attributes for errors
func ErrorAttributes(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, "error"),
		attribute.String(AttrErrorMessage, err.Error()),
	}
}
