package constants

type ContextKey string

const (
	TxKey        ContextKey = "pgx_tx"
	PoolKey      ContextKey = "pgx_pool"
	TenantIDKey  ContextKey = "tenant_id"
	LoggerKey    ContextKey = "logger"
	RequestIDKey ContextKey = "request_id"
)
