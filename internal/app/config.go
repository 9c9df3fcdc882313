package app

// Store backends selectable through CGISESSION_STORE.
const (
	StoreFile      = "file"
	StoreMemory    = "memory"
	StoreSQLite    = "sqlite"
	StorePostgres  = "postgres"
	StoreMemcached = "memcached"
	StoreRedis     = "redis"
)

// Config contains all runtime configuration loaded from environment variables.
// The CGI host controls the environment, so every value has a usable default.
type Config struct {
	LogLevel string
	// LogFormat is "json" or "text". Logs always go to stderr; stdout is the response.
	LogFormat string

	// StatusLine makes responses start with "HTTP/1.1 <code> <reason>".
	StatusLine   bool
	MaxBodyBytes int

	Store       string
	StorePath   string
	AtomicWrite bool
	// Serialize locks the session store around each request.
	Serialize bool
	LockPath  string

	DatabaseURL      string
	MemcachedServers []string
	RedisAddr        string
	RedisPassword    string

	CookieName     string
	CookieMaxAge   int
	CookieHttpOnly bool

	PostsFile string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		LogLevel:  EnvString("CGISESSION_LOG_LEVEL", "info"),
		LogFormat: EnvString("CGISESSION_LOG_FORMAT", "json"),

		StatusLine:   EnvBool("CGISESSION_STATUS_LINE", false),
		MaxBodyBytes: EnvInt("CGISESSION_MAX_BODY_BYTES", 10<<20),

		Store:       EnvString("CGISESSION_STORE", StoreFile),
		StorePath:   EnvString("CGISESSION_STORE_PATH", "session_db.json"),
		AtomicWrite: EnvBool("CGISESSION_ATOMIC_WRITE", false),
		Serialize:   EnvBool("CGISESSION_SERIALIZE", false),
		LockPath:    EnvString("CGISESSION_LOCK_PATH", ""),

		DatabaseURL:      EnvString("CGISESSION_DATABASE_URL", ""),
		MemcachedServers: EnvList("CGISESSION_MEMCACHED_SERVERS", []string{"127.0.0.1:11211"}),
		RedisAddr:        EnvString("CGISESSION_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:    EnvString("CGISESSION_REDIS_PASSWORD", ""),

		CookieName:     EnvString("CGISESSION_COOKIE_NAME", "session_id"),
		CookieMaxAge:   EnvInt("CGISESSION_COOKIE_MAX_AGE", 3600),
		CookieHttpOnly: EnvBool("CGISESSION_COOKIE_HTTPONLY", false),

		PostsFile: EnvString("CGISESSION_POSTS_FILE", "data.json"),
	}
}
