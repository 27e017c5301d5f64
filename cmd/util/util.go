package util

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/client"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/serializer"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds the client connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	key := "connect-timeout"
	flags.Duration(key, common.DefaultConnectTimeout, WrapString("Timeout for establishing a new connection"))

	key = "read-timeout"
	flags.Duration(key, common.DefaultReadTimeout, WrapString("Timeout for reading a complete response"))

	key = "write-timeout"
	flags.Duration(key, common.DefaultWriteTimeout, WrapString("Timeout for writing a complete request"))

	key = "log-level"
	flags.String(key, "warn", WrapString("Log level of the client (debug, info, warn, error)"))

	key = "transport-endpoints"
	flags.String(key, "localhost:1369", WrapString("The address of the ahnlich DB server. Multiple endpoints can be specified as a comma-separated list, requests are balanced round robin"))

	key = "transport-retries"
	flags.Int(key, 1, WrapString("How many times to try getting a connection before a request fails. A request that was already written is never retried"))

	key = "transport-max-message-size"
	flags.Uint64(key, 0, WrapString("Reject responses larger than this many bytes (0 means no limit)"))

	key = "transport-write-buffer"
	flags.Int(key, 0, WrapString("The size of the socket write buffer (in KB, 0 keeps the OS default)"))

	key = "transport-read-buffer"
	flags.Int(key, 0, WrapString("The size of the socket read buffer (in KB, 0 keeps the OS default)"))

	key = "transport-tcp-nodelay"
	flags.Bool(key, true, WrapString("Whether to enable TCP_NODELAY"))

	key = "transport-tcp-keepalive"
	flags.Int(key, 0, WrapString("The keepalive interval (in seconds, 0 disables keepalive)"))

	key = "transport-tcp-linger"
	flags.Int(key, 0, WrapString("The linger time (in seconds, 0 keeps the OS default)"))

	key = "pool-max-per-endpoint"
	flags.Int(key, common.DefaultMaxPerEndpoint, WrapString("Maximum number of connections per endpoint"))

	key = "pool-max-total"
	flags.Int(key, 0, WrapString("Maximum number of connections across all endpoints (0 means no cap)"))

	key = "pool-min-idle"
	flags.Int(key, 0, WrapString("Number of idle connections opened on connect and kept by the reaper"))

	key = "pool-max-idle-time"
	flags.Duration(key, 0, WrapString("Close connections that were idle for longer (0 disables the limit)"))

	key = "pool-max-lifetime"
	flags.Duration(key, 0, WrapString("Close connections that are older (0 disables the limit)"))

	key = "pool-acquire-timeout"
	flags.Duration(key, common.DefaultAcquireTimeout, WrapString("How long a request waits for a free connection"))

	key = "pool-reaper"
	flags.Bool(key, false, WrapString("Close expired idle connections in the background"))

	key = "protocol-version"
	flags.String(key, common.ProtocolVersion.String(), WrapString("Protocol version written into every request header (major.minor.patch)"))

	key = "protocol-strict-version"
	flags.Bool(key, false, WrapString("Reject responses with a different major version"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ahnlich")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	version, err := ParseVersion(viper.GetString("protocol-version"))
	if err != nil {
		return nil, err
	}

	conf := &common.ClientConfig{
		ConnectTimeout: viper.GetDuration("connect-timeout"),
		ReadTimeout:    viper.GetDuration("read-timeout"),
		WriteTimeout:   viper.GetDuration("write-timeout"),
		LogLevel:       viper.GetString("log-level"),
		Transport: common.ClientTransportConfig{
			Endpoints:      splitList(viper.GetString("transport-endpoints")),
			RetryCount:     viper.GetInt("transport-retries"),
			WireFormat:     common.WireFormat(viper.GetString("wire-format")),
			MaxMessageSize: viper.GetUint64("transport-max-message-size"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
			Pool: common.PoolConfig{
				MaxPerEndpoint: viper.GetInt("pool-max-per-endpoint"),
				MaxTotal:       viper.GetInt("pool-max-total"),
				MinIdle:        viper.GetInt("pool-min-idle"),
				MaxIdleTime:    viper.GetDuration("pool-max-idle-time"),
				MaxLifetime:    viper.GetDuration("pool-max-lifetime"),
				AcquireTimeout: viper.GetDuration("pool-acquire-timeout"),
				Reaper:         viper.GetBool("pool-reaper"),
			},
		},
		Protocol: common.ProtocolConfig{
			Version:       version,
			IntEncoding:   common.IntEncoding(viper.GetString("int-encoding")),
			StrictVersion: viper.GetBool("protocol-strict-version"),
		},
	}

	c := conf.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch e := common.IntEncoding(viper.GetString("int-encoding")); e {
	case common.IntEncodingVarint, common.IntEncodingFixint:
		return serializer.NewBinarySerializer(e), nil
	default:
		return nil, fmt.Errorf("invalid int encoding %s", e)
	}
}

// GetTransport creates transport based on configuration
func GetTransport() (transport.IRPCClientTransport, error) {
	switch f := common.WireFormat(viper.GetString("wire-format")); f {
	case common.WireFormatBincode, common.WireFormatGRPC:
		return client.NewTransport(f), nil
	default:
		return nil, fmt.Errorf("invalid wire format %s", f)
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Parsing Helper
// --------------------------------------------------------------------------

// ParseVersion parses a version in the format major.minor.patch
func ParseVersion(s string) (common.Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return common.Version{}, fmt.Errorf("invalid version %q (expected major.minor.patch)", s)
	}
	major, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return common.Version{}, fmt.Errorf("invalid major version %q: %w", parts[0], err)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil {
		return common.Version{}, fmt.Errorf("invalid minor version %q: %w", parts[1], err)
	}
	patch, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return common.Version{}, fmt.Errorf("invalid patch version %q: %w", parts[2], err)
	}
	return common.Version{Major: uint8(major), Minor: uint16(minor), Patch: uint16(patch)}, nil
}

// ParseKey parses a comma separated list of floats into a store key
func ParseKey(s string) (common.StoreKey, error) {
	fields := splitList(s)
	key := make(common.StoreKey, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid key component %q: %w", f, err)
		}
		key = append(key, float32(v))
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("key must not be empty")
	}
	return key, nil
}

// ParseMetadata parses a comma separated list of name=value pairs
func ParseMetadata(s string) (common.StoreValue, error) {
	m := make(map[string]string)
	for _, pair := range splitList(s) {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid metadata %q (expected name=value)", pair)
		}
		m[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return common.MetadataFromStrings(m), nil
}

// FormatTime formats a server timestamp for output
func FormatTime(t common.SystemTime) string {
	return t.Time().Format(time.RFC3339)
}

// FormatValue prints metadata as name=value pairs, binary values in hex
func FormatValue(v common.StoreValue) string {
	pairs := make([]string, 0, len(v))
	for name, value := range v {
		switch mv := value.(type) {
		case common.RawString:
			pairs = append(pairs, fmt.Sprintf("%s=%s", name, string(mv)))
		case common.Binary:
			pairs = append(pairs, fmt.Sprintf("%s=0x%x", name, []byte(mv)))
		}
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ", ") + "}"
}

// FormatInput prints a store input, images as their size
func FormatInput(in common.StoreInput) string {
	switch v := in.(type) {
	case common.InputRawString:
		return strconv.Quote(string(v))
	case common.InputImage:
		return fmt.Sprintf("<image %d bytes>", len(v))
	default:
		return "<not stored>"
	}
}

// splitList splits a comma separated list and drops empty entries
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
