package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is a typed view over the broker's YAML configuration file. The CLI
// handles flags and environment variables; everything that is keyed by name
// (databases, routes, REST tweaks) lives here.
type Config struct {
	v *viper.Viper
}

// DBConfig holds the configuration of one named database section
// (`db.<name>.*`).
type DBConfig struct {
	Name    string
	Type    string
	Factory string
	DSN     string
	Pool    PoolConfig
}

// PoolConfig carries the sql pool tunables of one database.
type PoolConfig struct {
	MaxOpenConns   int
	MaxIdleConns   int
	AcquireTimeout time.Duration
}

var DefaultPoolConfig = PoolConfig{
	MaxOpenConns:   20,
	MaxIdleConns:   2,
	AcquireTimeout: 10 * time.Second,
}

// RESTConfig holds the `rest.*` section.
type RESTConfig struct {
	JSONPrefix                 string
	JSONSuffix                 string
	WrapJSONResponses          bool
	DynamicDataFormatParamName string
}

// RouterConfig holds the `server.router.*` paths.
type RouterConfig struct {
	IDACallPath          string
	RESTCallPath         string
	DataSourceLoaderPath string
}

// Load reads the configuration file at the given path. An empty path yields a
// Config backed only by defaults, which is enough for JSON data sources and
// tests.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	return &Config{v: v}, nil
}

// New wraps an already populated viper instance. Used by tests.
func New(v *viper.Viper) *Config {
	setDefaults(v)
	return &Config{v: v}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataSource.path", "./datasources")
	v.SetDefault("dataSource.strictSQLFiltering", false)
	v.SetDefault("dataSource.pool.size", 8)
	v.SetDefault("rest.dynamicDataFormatParamName", "isc_dataFormat")
	v.SetDefault("rest.wrapJSONResponses", true)
	v.SetDefault("rpc.exception.stacktrace", false)
	v.SetDefault("server.router.idaCall.path", "/ida")
	v.SetDefault("server.router.restCall.path", "/rest")
	v.SetDefault("server.router.dataSourceLoader.path", "/loadDataSources")
	v.SetDefault("server.metaDataPrefix", "_")
}

// DefaultDatabase returns `db.defaultDatabase`, failing when the db section is
// absent.
func (c *Config) DefaultDatabase() (string, error) {
	if !c.v.IsSet("db") {
		return "", fmt.Errorf("config has no db section")
	}
	name := c.v.GetString("db.defaultDatabase")
	if name == "" {
		return "", fmt.Errorf("config has no db.defaultDatabase")
	}
	return name, nil
}

// DB resolves one `db.<name>` section. An empty name falls back to the
// configured default database.
func (c *Config) DB(name string) (DBConfig, error) {
	var err error
	if name == "" {
		name, err = c.DefaultDatabase()
		if err != nil {
			return DBConfig{}, err
		}
	}

	key := "db." + name
	if !c.v.IsSet(key) {
		return DBConfig{}, fmt.Errorf("config has no db.%s section", name)
	}

	cfg := DBConfig{
		Name:    name,
		Type:    c.v.GetString(key + ".type"),
		Factory: c.v.GetString(key + ".factory"),
		DSN:     c.v.GetString(key + ".connection.dsn"),
		Pool:    DefaultPoolConfig,
	}
	if c.v.IsSet(key + ".pool.maxOpenConns") {
		cfg.Pool.MaxOpenConns = c.v.GetInt(key + ".pool.maxOpenConns")
	}
	if c.v.IsSet(key + ".pool.maxIdleConns") {
		cfg.Pool.MaxIdleConns = c.v.GetInt(key + ".pool.maxIdleConns")
	}
	if c.v.IsSet(key + ".pool.acquireTimeoutSeconds") {
		cfg.Pool.AcquireTimeout = time.Duration(c.v.GetInt(key+".pool.acquireTimeoutSeconds")) * time.Second
	}
	return cfg, nil
}

// DBType returns `db.<name>.type`, e.g. "postgresql" or "sqlite". Used to
// select the SQL dialect.
func (c *Config) DBType(name string) (string, error) {
	cfg, err := c.DB(name)
	if err != nil {
		return "", err
	}
	return cfg.Type, nil
}

func (c *Config) DataSourcePath() string {
	return c.v.GetString("dataSource.path")
}

func (c *Config) StrictSQLFiltering() bool {
	return c.v.GetBool("dataSource.strictSQLFiltering")
}

func (c *Config) DataSourcePoolSize() int {
	return c.v.GetInt("dataSource.pool.size")
}

func (c *Config) REST() RESTConfig {
	return RESTConfig{
		JSONPrefix:                 c.v.GetString("rest.jsonPrefix"),
		JSONSuffix:                 c.v.GetString("rest.jsonSuffix"),
		WrapJSONResponses:          c.v.GetBool("rest.wrapJSONResponses"),
		DynamicDataFormatParamName: c.v.GetString("rest.dynamicDataFormatParamName"),
	}
}

func (c *Config) Router() RouterConfig {
	return RouterConfig{
		IDACallPath:          c.v.GetString("server.router.idaCall.path"),
		RESTCallPath:         c.v.GetString("server.router.restCall.path"),
		DataSourceLoaderPath: c.v.GetString("server.router.dataSourceLoader.path"),
	}
}

// RPCStacktrace reports whether RPC failure responses should carry a
// stacktrace field.
func (c *Config) RPCStacktrace() bool {
	return c.v.GetBool("rpc.exception.stacktrace")
}

// MetaDataPrefix is the prefix marking request parameters that are decoded
// onto the operation itself rather than merged into its data.
func (c *Config) MetaDataPrefix() string {
	return c.v.GetString("server.metaDataPrefix")
}
