package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Enumerations
// --------------------------------------------------------------------------

// WireFormat selects how requests are carried to the server.
type WireFormat string

const (
	// WireFormatBincode sends length-prefixed frames over pooled TCP connections
	WireFormatBincode WireFormat = "bincode"
	// WireFormatGRPC sends the same payload as a gRPC unary call
	WireFormatGRPC WireFormat = "grpc"
)

// IntEncoding selects how lengths, counts and variant discriminants are encoded.
type IntEncoding string

const (
	// IntEncodingVarint encodes them as unsigned LEB128
	IntEncodingVarint IntEncoding = "varint"
	// IntEncodingFixint encodes lengths as u64 and discriminants as u32 (little endian)
	IntEncodingFixint IntEncoding = "fixint"
)

// --------------------------------------------------------------------------
// Default values
// --------------------------------------------------------------------------

const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultWriteTimeout   = 30 * time.Second
	DefaultAcquireTimeout = 5 * time.Second
	DefaultMaxPerEndpoint = 10
	DefaultReapInterval   = 30 * time.Second
	DefaultReapBatchSize  = 16
)

// --------------------------------------------------------------------------
// Client configuration structs
// --------------------------------------------------------------------------

// SocketConf holds the socket buffer sizes, 0 keeps the OS default.
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket options.
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	// TCPLingerSec <= 0 keeps the OS default
	TCPLingerSec int
}

// PoolConfig controls the connection pool of the bincode transport.
// Zero durations disable the corresponding limit.
type PoolConfig struct {
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
	MinIdle        int
	MaxPerEndpoint int
	// MaxTotal caps the connections across all endpoints, 0 means no cap
	MaxTotal       int
	AcquireTimeout time.Duration

	// background cleanup of expired idle connections
	Reaper        bool
	ReapInterval  time.Duration
	ReapBatchSize int
}

// ClientTransportConfig holds everything needed to reach the server.
type ClientTransportConfig struct {
	SocketConf
	TCPConf
	Endpoints  []string
	RetryCount int
	WireFormat WireFormat
	// MaxMessageSize rejects larger response frames, 0 means no limit
	MaxMessageSize uint64
	Pool           PoolConfig
}

// ProtocolConfig controls the payload encoding and the frame header.
type ProtocolConfig struct {
	Version     Version
	IntEncoding IntEncoding
	// StrictVersion rejects responses with a different major version
	StrictVersion bool
}

// ClientConfig is the complete configuration of a client. The client never
// reads environment variables itself, the cmd layer builds this struct.
type ClientConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Transport      ClientTransportConfig
	Protocol       ProtocolConfig
	LogLevel       string
}

// --------------------------------------------------------------------------
// Server configuration structs
// --------------------------------------------------------------------------

// ServerConfig configures the framed server transport. Only the in-process
// test peer and the CLI's local server use it.
type ServerConfig struct {
	SocketConf
	TCPConf
	Endpoint     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxMessageSize rejects larger request frames, 0 means no limit
	MaxMessageSize uint64
	// Version is written into every response header
	Version Version
}

// --------------------------------------------------------------------------
// Constructors
// --------------------------------------------------------------------------

// DefaultClientConfig returns a configuration for the given endpoints with all
// defaults applied.
func DefaultClientConfig(endpoints ...string) ClientConfig {
	c := ClientConfig{
		Transport: ClientTransportConfig{
			Endpoints: endpoints,
			TCPConf:   TCPConf{TCPNoDelay: true},
		},
	}
	return c.WithDefaults()
}

// WithDefaults returns a copy of c where every unset value is replaced by its
// default.
func (c ClientConfig) WithDefaults() ClientConfig {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.RetryCount < 1 {
		c.Transport.RetryCount = 1
	}
	if c.Transport.WireFormat == "" {
		c.Transport.WireFormat = WireFormatBincode
	}
	if c.Protocol.Version == (Version{}) {
		c.Protocol.Version = ProtocolVersion
	}
	if c.Protocol.IntEncoding == "" {
		c.Protocol.IntEncoding = IntEncodingVarint
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	p := &c.Transport.Pool
	if p.MaxPerEndpoint <= 0 {
		p.MaxPerEndpoint = DefaultMaxPerEndpoint
	}
	if p.AcquireTimeout == 0 {
		p.AcquireTimeout = DefaultAcquireTimeout
	}
	if p.ReapInterval == 0 {
		p.ReapInterval = DefaultReapInterval
	}
	if p.ReapBatchSize <= 0 {
		p.ReapBatchSize = DefaultReapBatchSize
	}
	return c
}

// Validate checks the configuration for values that can never work.
func (c ClientConfig) Validate() error {
	if len(c.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}
	for i, ep := range c.Transport.Endpoints {
		if strings.TrimSpace(ep) == "" {
			return fmt.Errorf("endpoint %d is empty", i)
		}
	}
	switch c.Transport.WireFormat {
	case WireFormatBincode, WireFormatGRPC:
	default:
		return fmt.Errorf("unknown wire format %q", c.Transport.WireFormat)
	}
	switch c.Protocol.IntEncoding {
	case IntEncodingVarint, IntEncodingFixint:
	default:
		return fmt.Errorf("unknown int encoding %q", c.Protocol.IntEncoding)
	}
	if c.ConnectTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	p := c.Transport.Pool
	if p.MaxIdleTime < 0 || p.MaxLifetime < 0 || p.AcquireTimeout < 0 || p.ReapInterval < 0 {
		return fmt.Errorf("pool durations must not be negative")
	}
	if p.MinIdle < 0 || p.MaxTotal < 0 {
		return fmt.Errorf("pool sizes must not be negative")
	}
	if p.MaxPerEndpoint > 0 && p.MinIdle > p.MaxPerEndpoint {
		return fmt.Errorf("min idle (%d) exceeds max per endpoint (%d)", p.MinIdle, p.MaxPerEndpoint)
	}
	// every endpoint keeps MinIdle open, the reaper would close them again
	if n := len(c.Transport.Endpoints); p.MaxTotal > 0 && p.MinIdle*n > p.MaxTotal {
		return fmt.Errorf("min idle (%d) on %d endpoints exceeds max total (%d)", p.MinIdle, n, p.MaxTotal)
	}
	return nil
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Wire Format", string(c.Transport.WireFormat))
	addField("Connect Timeout", c.ConnectTimeout.String())
	addField("Read Timeout", c.ReadTimeout.String())
	addField("Write Timeout", c.WriteTimeout.String())
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Log Level", c.LogLevel)

	// Protocol
	addSection("Protocol")
	addField("Version", c.Protocol.Version.String())
	addField("Int Encoding", string(c.Protocol.IntEncoding))
	addField("Strict Version", strconv.FormatBool(c.Protocol.StrictVersion))
	if c.Transport.MaxMessageSize > 0 {
		addField("Max Message Size", fmt.Sprintf("%d bytes", c.Transport.MaxMessageSize))
	} else {
		addField("Max Message Size", "unlimited")
	}

	// Pool
	p := c.Transport.Pool
	addSection("Connection Pool")
	addField("Max Per Endpoint", strconv.Itoa(p.MaxPerEndpoint))
	addField("Max Total", strconv.Itoa(p.MaxTotal))
	addField("Min Idle", strconv.Itoa(p.MinIdle))
	addField("Max Idle Time", p.MaxIdleTime.String())
	addField("Max Lifetime", p.MaxLifetime.String())
	addField("Acquire Timeout", p.AcquireTimeout.String())
	addField("Reaper", strconv.FormatBool(p.Reaper))
	if p.Reaper {
		addField("Reap Interval", p.ReapInterval.String())
		addField("Reap Batch Size", strconv.Itoa(p.ReapBatchSize))
	}

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
