package config

const (
	EnvPrefix = "CARTSYNC"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv            = "CARTSYNC_APP_ENV"
	EnvLogLevel          = "CARTSYNC_LOG_LEVEL"
	EnvLogFormat         = "CARTSYNC_LOG_FORMAT"
	EnvStorefrontBaseURL = "CARTSYNC_STOREFRONT_BASE_URL"
	EnvStorefrontFake    = "CARTSYNC_STOREFRONT_FAKE"
	EnvCSRFCookie        = "CARTSYNC_CSRF_COOKIE"
	EnvRequestTimeout    = "CARTSYNC_REQUEST_TIMEOUT"
	EnvAddConfirmHold    = "CARTSYNC_ADD_CONFIRM_HOLD"
	EnvMediaPrefix       = "CARTSYNC_MEDIA_PREFIX"
	EnvLocale            = "CARTSYNC_LOCALE"
	EnvAuthenticated     = "CARTSYNC_AUTHENTICATED"
	EnvMetricsAddr       = "CARTSYNC_METRICS_ADDR"
)
