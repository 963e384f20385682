package config

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/brensch/pscparquet/internal/recordset"
	"github.com/brensch/pscparquet/internal/transform"
)

const (
	DefaultBaseURL    = "https://download.companieshouse.gov.uk"
	DefaultListingURL = DefaultBaseURL + "/en_pscdata.html"
	DefaultBucket     = "companies-house-psc"
	DefaultBackend    = "local"
	DefaultS3Region   = "eu-west-2"

	// Batch convention: the first DefaultShards of a DefaultTotalShards snapshot.
	DefaultShards      = 4
	DefaultTotalShards = 31

	DefaultHTTPTimeout = 30 * time.Minute

	// ReservedCPUs are left free for the OS and the upload clients when the
	// worker count is derived from the CPU count.
	ReservedCPUs = 2
)

// DefaultNumWorkers is max(1, NumCPU - ReservedCPUs).
func DefaultNumWorkers() int {
	return max(1, runtime.NumCPU()-ReservedCPUs)
}

// Config holds application settings
type Config struct {
	BaseURL    string
	ListingURL string
	StagingDir string
	DbPath     string
	NumWorkers int

	StorageBackend  string
	Bucket          string
	LocalStoreDir   string
	S3Region        string
	S3Endpoint      string
	MinioEndpoint   string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool

	DownloadRateLimit float64 // requests per second, 0 for unlimited
	HTTPTimeout       time.Duration

	Partitions []string
	Cast       transform.CastSpec
}

// Default returns a Config populated with the production defaults.
func Default() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		ListingURL:     DefaultListingURL,
		StagingDir:     "",
		DbPath:         "./pscparquet_state.duckdb",
		StorageBackend: DefaultBackend,
		Bucket:         DefaultBucket,
		LocalStoreDir:  "./object_store",
		S3Region:       DefaultS3Region,
		UseSSL:         true,
		HTTPTimeout:    DefaultHTTPTimeout,
		Cast:           transform.DefaultCastSpec(),
	}
}

// Workers resolves the pool size: NumWorkers when positive, otherwise the CPU derived default.
func (c Config) Workers() int {
	if c.NumWorkers > 0 {
		return c.NumWorkers
	}
	return DefaultNumWorkers()
}

// Validate checks the fields every command needs.
func (c Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base url is required"))
	}
	if c.DbPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if c.NumWorkers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.NumWorkers))
	}
	if c.DownloadRateLimit < 0 {
		errs = append(errs, fmt.Errorf("download rate limit must not be negative, got %v", c.DownloadRateLimit))
	}
	switch strings.ToLower(c.StorageBackend) {
	case "local", "":
		if c.LocalStoreDir == "" {
			errs = append(errs, errors.New("local store dir is required for the local backend"))
		}
	case "s3":
		if c.S3Region == "" {
			errs = append(errs, errors.New("s3 region is required for the s3 backend"))
		}
	case "minio":
		if c.MinioEndpoint == "" {
			errs = append(errs, errors.New("minio endpoint is required for the minio backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}
	return errors.Join(errs...)
}

// ParseIntCasts turns {"month": "int8"} into a cast map.
func ParseIntCasts(raw map[string]string) (map[string]recordset.Scalar, error) {
	out := make(map[string]recordset.Scalar, len(raw))
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s, err := recordset.ParseScalar(raw[name])
		if err != nil {
			return nil, fmt.Errorf("cast %s: %w", name, err)
		}
		if !s.IsInteger() {
			return nil, fmt.Errorf("cast %s: %s is not an integer type", name, s)
		}
		out[name] = s
	}
	return out, nil
}
