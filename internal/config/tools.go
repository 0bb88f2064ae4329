package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// GeocoderConfig configures the Nominatim geocoder shared by several tools.
type GeocoderConfig struct {
	GeocoderURL       string        `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org"`
	GeocoderUserAgent string        `env:"GEOCODER_USER_AGENT" envDefault:"food_pantry_navigator"`
	GeocoderTimeout   time.Duration `env:"GEOCODER_TIMEOUT" envDefault:"10s"`
}

// CollectorConfig configures the realtime collector. Update intervals are in seconds
// and double as the Redis TTL of the stored payload.
type CollectorConfig struct {
	LogConfig
	GeocoderConfig
	AlertConfig

	RedisURL        string        `env:"REDIS_URL,required"`
	CollectInterval time.Duration `env:"COLLECT_INTERVAL" envDefault:"60s"`
	MetricsPort     int           `env:"COLLECTOR_METRICS_PORT" envDefault:"9091"`

	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimits       RateLimitConfig

	FoodbankEnabled  bool   `env:"ENABLE_FOODBANK_API" envDefault:"true"`
	FoodbankURL      string `env:"FOODBANK_API_URL"`
	FoodbankAPIKey   string `env:"FOODBANK_API_KEY"`
	FoodbankInterval int    `env:"FOODBANK_UPDATE_INTERVAL" envDefault:"300"`

	WeatherEnabled  bool   `env:"ENABLE_WEATHER_API" envDefault:"true"`
	WeatherURL      string `env:"WEATHER_API_URL"`
	WeatherAPIKey   string `env:"WEATHER_API_KEY"`
	WeatherInterval int    `env:"WEATHER_UPDATE_INTERVAL" envDefault:"3600"`

	QueueEnabled  bool   `env:"ENABLE_QUEUE_API" envDefault:"true"`
	QueueURL      string `env:"QUEUE_API_URL"`
	QueueAPIKey   string `env:"QUEUE_API_KEY"`
	QueueInterval int    `env:"QUEUE_UPDATE_INTERVAL" envDefault:"60"`
}

// LoadCollector parses the collector configuration.
func LoadCollector() (*CollectorConfig, error) {
	return parse[CollectorConfig]()
}

// ChatConfig configures the single-shot chat assistant.
type ChatConfig struct {
	LogConfig

	Message   string        `env:"MESSAGE"`
	IsSpanish string        `env:"IS_SPANISH" envDefault:"false"`
	OllamaURL string        `env:"OLLAMA_API_URL" envDefault:"http://localhost:11434"`
	Model     string        `env:"OLLAMA_MODEL" envDefault:"llama3.2"`
	Timeout   time.Duration `env:"OLLAMA_TIMEOUT" envDefault:"60s"`
	// Requests per second allowed towards the model server.
	RateLimit float64 `env:"CHAT_RATE_LIMIT" envDefault:"1"`
}

// Spanish reports whether IS_SPANISH is "true", ignoring case.
func (c *ChatConfig) Spanish() bool {
	return strings.EqualFold(strings.TrimSpace(c.IsSpanish), "true")
}

// Language returns the BCP 47 tag the assistant should answer in.
func (c *ChatConfig) Language() string {
	if c.Spanish() {
		return "es"
	}
	return "en"
}

// LoadChat parses the chat configuration.
func LoadChat() (*ChatConfig, error) {
	return parse[ChatConfig]()
}

// BackupConfig configures database, file and configuration backups.
type BackupConfig struct {
	LogConfig

	GCPProjectID    string `env:"GCP_PROJECT_ID"`
	Bucket          string `env:"BACKUP_BUCKET" envDefault:"food-pantry-backups"`
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	SQLInstance     string `env:"CLOUDSQL_INSTANCE"`

	DatabaseEnabled   bool   `env:"ENABLE_DATABASE_BACKUP" envDefault:"true"`
	DatabaseRetention int    `env:"DATABASE_BACKUP_RETENTION" envDefault:"30"`
	DatabaseSchedule  string `env:"DATABASE_BACKUP_SCHEDULE" envDefault:"daily"`

	FilesEnabled   bool   `env:"ENABLE_FILE_BACKUP" envDefault:"true"`
	FilesRetention int    `env:"FILE_BACKUP_RETENTION" envDefault:"7"`
	FilesSchedule  string `env:"FILE_BACKUP_SCHEDULE" envDefault:"daily"`
	// JSON list of directories, e.g. ["data","models"]
	Directories string `env:"BACKUP_DIRECTORIES" envDefault:"[]"`

	ConfigEnabled   bool   `env:"ENABLE_CONFIG_BACKUP" envDefault:"true"`
	ConfigRetention int    `env:"CONFIG_BACKUP_RETENTION" envDefault:"30"`
	ConfigSchedule  string `env:"CONFIG_BACKUP_SCHEDULE" envDefault:"daily"`

	WaitDelay       time.Duration `env:"BACKUP_WAIT_DELAY" envDefault:"30s"`
	WaitMaxAttempts int           `env:"BACKUP_WAIT_MAX_ATTEMPTS" envDefault:"20"`
}

// BackupDirectories decodes BACKUP_DIRECTORIES.
func (c *BackupConfig) BackupDirectories() ([]string, error) {
	return decodeJSONList[string]("BACKUP_DIRECTORIES", c.Directories)
}

// LoadBackup parses the backup configuration.
func LoadBackup() (*BackupConfig, error) {
	return parse[BackupConfig]()
}

// ScalerConfig configures the autoscaler over a managed instance group.
type ScalerConfig struct {
	LogConfig

	GCPProjectID    string        `env:"GCP_PROJECT_ID"`
	Zone            string        `env:"GCP_ZONE" envDefault:"us-central1-a"`
	CredentialsFile string        `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	MetricsWindow   time.Duration `env:"SCALING_METRICS_WINDOW" envDefault:"5m"`

	GroupEnabled bool   `env:"ENABLE_GROUP_SCALING" envDefault:"true"`
	GroupName    string `env:"INSTANCE_GROUP_NAME"`
	MinSize      int    `env:"GROUP_MIN_SIZE" envDefault:"2"`
	MaxSize      int    `env:"GROUP_MAX_SIZE" envDefault:"10"`
	DesiredSize  int    `env:"GROUP_DESIRED_SIZE" envDefault:"3"`

	CPUEnabled   bool    `env:"ENABLE_CPU_SCALING" envDefault:"true"`
	CPUTarget    float64 `env:"CPU_TARGET_UTILIZATION" envDefault:"70"`
	CPUScaleUp   float64 `env:"CPU_SCALE_UP_THRESHOLD" envDefault:"80"`
	CPUScaleDown float64 `env:"CPU_SCALE_DOWN_THRESHOLD" envDefault:"30"`

	MemoryEnabled   bool    `env:"ENABLE_MEMORY_SCALING" envDefault:"true"`
	MemoryTarget    float64 `env:"MEMORY_TARGET_UTILIZATION" envDefault:"70"`
	MemoryScaleUp   float64 `env:"MEMORY_SCALE_UP_THRESHOLD" envDefault:"80"`
	MemoryScaleDown float64 `env:"MEMORY_SCALE_DOWN_THRESHOLD" envDefault:"30"`

	RequestRateEnabled   bool    `env:"ENABLE_REQUEST_RATE_SCALING" envDefault:"true"`
	RequestRateTarget    float64 `env:"REQUEST_RATE_TARGET" envDefault:"100"`
	RequestRateScaleUp   float64 `env:"REQUEST_RATE_SCALE_UP_THRESHOLD" envDefault:"150"`
	RequestRateScaleDown float64 `env:"REQUEST_RATE_SCALE_DOWN_THRESHOLD" envDefault:"50"`
	RequestRateMetric    string  `env:"REQUEST_RATE_METRIC" envDefault:"custom.googleapis.com/pantrynav/api_request_rate"`
}

// LoadScaler parses the scaler configuration.
func LoadScaler() (*ScalerConfig, error) {
	return parse[ScalerConfig]()
}

// ScanConfig configures the security scan runner.
type ScanConfig struct {
	LogConfig

	SASTEnabled       bool          `env:"ENABLE_SAST" envDefault:"true"`
	DependencyEnabled bool          `env:"ENABLE_DEPENDENCY_CHECK" envDefault:"true"`
	SecretEnabled     bool          `env:"ENABLE_SECRET_SCAN" envDefault:"true"`
	NetworkEnabled    bool          `env:"ENABLE_NETWORK_SCAN" envDefault:"true"`
	TargetHost        string        `env:"TARGET_HOST" envDefault:"localhost"`
	ScanDir           string        `env:"SCAN_DIR" envDefault:"."`
	ReportFile        string        `env:"SECURITY_REPORT_FILE" envDefault:"security_report.json"`
	ToolTimeout       time.Duration `env:"SCAN_TOOL_TIMEOUT" envDefault:"10m"`
}

// LoadScan parses the scanner configuration.
func LoadScan() (*ScanConfig, error) {
	return parse[ScanConfig]()
}

// PerfConfig configures the performance tester. Durations are in seconds.
type PerfConfig struct {
	LogConfig

	BaseURL      string `env:"PERF_BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL  string `env:"DATABASE_URL"`
	ScenarioFile string `env:"PERF_SCENARIO_FILE"`
	// JSON list of {"name": ..., "path": ...}; used when no scenario file is given.
	Endpoints  string `env:"API_TEST_ENDPOINTS" envDefault:"[]"`
	ReportFile string `env:"PERFORMANCE_REPORT_FILE" envDefault:"performance_report.json"`

	LoadEnabled     bool `env:"ENABLE_LOAD_TESTS" envDefault:"true"`
	LoadUsers       int  `env:"API_TEST_USERS" envDefault:"100"`
	LoadSpawnRate   int  `env:"API_TEST_SPAWN_RATE" envDefault:"10"`
	LoadDuration    int  `env:"API_TEST_DURATION" envDefault:"300"`
	LoadMaxRequests int  `env:"LOAD_TEST_REQUESTS" envDefault:"10000"`
	LoadTargetRPS   int  `env:"LOAD_TEST_RPS" envDefault:"100"`

	StressEnabled  bool `env:"ENABLE_STRESS_TESTS" envDefault:"true"`
	StressMaxUsers int  `env:"STRESS_TEST_MAX_USERS" envDefault:"500"`
	StressDuration int  `env:"STRESS_TEST_DURATION" envDefault:"600"`
	StressStep     int  `env:"STRESS_TEST_STEP_LOAD" envDefault:"50"`

	DatabaseEnabled     bool   `env:"ENABLE_DATABASE_TESTS" envDefault:"true"`
	DatabaseQuerySets   string `env:"DATABASE_TEST_QUERIES" envDefault:"[]"`
	DatabaseConcurrency int    `env:"DATABASE_TEST_CONCURRENCY" envDefault:"10"`
}

// LoadPerf parses the performance tester configuration.
func LoadPerf() (*PerfConfig, error) {
	return parse[PerfConfig]()
}

// RoutingConfig configures street-graph routing.
type RoutingConfig struct {
	LogConfig
	GeocoderConfig

	GraphFile   string `env:"STREET_GRAPH_FILE" envDefault:"data/street_graph.json"`
	OverpassURL string `env:"OVERPASS_API_URL" envDefault:"https://overpass-api.de/api/interpreter"`
	// south,west,north,east
	BoundingBox string `env:"ROUTING_BBOX" envDefault:"42.88,-85.75,43.03,-85.55"`
}

// LoadRouting parses the routing configuration.
func LoadRouting() (*RoutingConfig, error) {
	return parse[RoutingConfig]()
}

// PredictConfig configures the demand predictor.
type PredictConfig struct {
	LogConfig

	ModelFile     string `env:"DEMAND_MODEL_FILE" envDefault:"models/demand_model.json"`
	WeatherAPIKey string `env:"OPENWEATHERMAP_API_KEY"`
	WeatherURL    string `env:"OPENWEATHERMAP_API_URL" envDefault:"https://api.openweathermap.org/data/2.5/weather"`
}

// LoadPredict parses the predictor configuration.
func LoadPredict() (*PredictConfig, error) {
	return parse[PredictConfig]()
}

// FeederConfig configures provider data ingestion.
type FeederConfig struct {
	LogConfig
	GeocoderConfig

	// Optional. When set, processed records are upserted into Postgres.
	DatabaseURL string        `env:"DATABASE_URL"`
	DataDir     string        `env:"DATA_DIR" envDefault:"data"`
	HTTPTimeout time.Duration `env:"FEEDER_TIMEOUT" envDefault:"10s"`

	FeedingWMURL     string `env:"FEEDING_WM_URL" envDefault:"https://www.feedwm.org/food-pantries/"`
	SalvationArmyURL string `env:"SALVATION_ARMY_URL" envDefault:"https://centralusa.salvationarmy.org/kentcounty/cure-hunger/"`
	YWCAURL          string `env:"YWCA_URL" envDefault:"https://www.ywcagrandrapids.org/programs/"`
}

// LoadFeeder parses the ingestion configuration.
func LoadFeeder() (*FeederConfig, error) {
	return parse[FeederConfig]()
}

// DBToolConfig is used by setup-db.
type DBToolConfig struct {
	LogConfig
	DatabaseURL string `env:"DATABASE_URL,required"`
}

// LoadDBTool parses the database tool configuration.
func LoadDBTool() (*DBToolConfig, error) {
	return parse[DBToolConfig]()
}

func decodeJSONList[T any](name, raw string) ([]T, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return out, nil
}

// PerfEndpoint is one entry of API_TEST_ENDPOINTS.
type PerfEndpoint struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// PerfQuerySet is one entry of DATABASE_TEST_QUERIES.
type PerfQuerySet struct {
	Name  string `json:"name"`
	Query string `json:"query"`
}

// EndpointList decodes API_TEST_ENDPOINTS.
func (c *PerfConfig) EndpointList() ([]PerfEndpoint, error) {
	return decodeJSONList[PerfEndpoint]("API_TEST_ENDPOINTS", c.Endpoints)
}

// QuerySets decodes DATABASE_TEST_QUERIES.
func (c *PerfConfig) QuerySets() ([]PerfQuerySet, error) {
	return decodeJSONList[PerfQuerySet]("DATABASE_TEST_QUERIES", c.DatabaseQuerySets)
}

// ResourcesConfig is used by pantryctl resources.
type ResourcesConfig struct {
	LogConfig
	ResourcesFile string `env:"RESOURCES_FILE" envDefault:"resources.json"`
}

// LoadResources parses the resource tool configuration.
func LoadResources() (*ResourcesConfig, error) {
	return parse[ResourcesConfig]()
}
