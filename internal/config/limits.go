package config

// CacheConfig holds per-type cache settings. Durations are in seconds.
type CacheConfig struct {
	ServiceLocationsTTL     int `env:"CACHE_SERVICE_LOCATIONS_TTL" envDefault:"3600"`
	ServiceLocationsRefresh int `env:"CACHE_SERVICE_LOCATIONS_REFRESH" envDefault:"300"`
	ServiceLocationsMaxSize int `env:"CACHE_SERVICE_LOCATIONS_MAX_SIZE" envDefault:"1000"`

	RouteOptimizationTTL     int `env:"CACHE_ROUTE_OPTIMIZATION_TTL" envDefault:"300"`
	RouteOptimizationRefresh int `env:"CACHE_ROUTE_OPTIMIZATION_REFRESH" envDefault:"60"`
	RouteOptimizationMaxSize int `env:"CACHE_ROUTE_OPTIMIZATION_MAX_SIZE" envDefault:"100"`

	WeatherDataTTL     int `env:"CACHE_WEATHER_DATA_TTL" envDefault:"3600"`
	WeatherDataRefresh int `env:"CACHE_WEATHER_DATA_REFRESH" envDefault:"300"`
	WeatherDataMaxSize int `env:"CACHE_WEATHER_DATA_MAX_SIZE" envDefault:"10"`
}

// RateLimitConfig holds per-service fixed-window limits. Windows are in seconds.
type RateLimitConfig struct {
	APIRequests int `env:"RATE_LIMIT_API_REQUESTS" envDefault:"1000"`
	APIWindow   int `env:"RATE_LIMIT_API_WINDOW" envDefault:"60"`
	APIBurst    int `env:"RATE_LIMIT_API_BURST" envDefault:"100"`

	DataCollectionRequests int `env:"RATE_LIMIT_DATA_COLLECTION_REQUESTS" envDefault:"100"`
	DataCollectionWindow   int `env:"RATE_LIMIT_DATA_COLLECTION_WINDOW" envDefault:"3600"`
	DataCollectionBurst    int `env:"RATE_LIMIT_DATA_COLLECTION_BURST" envDefault:"20"`

	RouteOptimizationRequests int `env:"RATE_LIMIT_ROUTE_OPTIMIZATION_REQUESTS" envDefault:"500"`
	RouteOptimizationWindow   int `env:"RATE_LIMIT_ROUTE_OPTIMIZATION_WINDOW" envDefault:"60"`
	RouteOptimizationBurst    int `env:"RATE_LIMIT_ROUTE_OPTIMIZATION_BURST" envDefault:"50"`
}

// CacheToolConfig is used by pantryctl cache and ratelimit commands.
type CacheToolConfig struct {
	LogConfig
	RedisURL   string `env:"REDIS_URL,required"`
	Cache      CacheConfig
	RateLimits RateLimitConfig
}

// LoadCacheTool parses the cache/ratelimit tool configuration.
func LoadCacheTool() (*CacheToolConfig, error) {
	return parse[CacheToolConfig]()
}
