package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const (
	DefaultHost      = "localhost"
	DefaultPort      = 2009
	DefaultChunkSize = 1024
)

var v *viper.Viper

func init() {
	v = viper.New()
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("KVSVIEW")
	v.AutomaticEnv()
	v.BindEnv("receiver.host", "KVSVIEW_HOST")
	v.BindEnv("receiver.port", "KVSVIEW_PORT")
	v.BindEnv("receiver.variant", "KVSVIEW_VARIANT")
	v.BindEnv("producer.classpath", "KVSVIEW_PRODUCER_CLASSPATH")
	v.BindEnv("producer.stream", "KVSVIEW_STREAM")
	v.BindEnv("producer.region", "KVSVIEW_REGION", "AWS_REGION")
	v.BindEnv("display.mode", "KVSVIEW_DISPLAY")
	v.BindEnv("web.addr", "KVSVIEW_WEB_ADDR")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths := []string{
		".",
		filepath.Join(xdg.ConfigHome, "kvsview"),
		"/etc/kvsview",
	}
	for _, path := range configPaths {
		v.AddConfigPath(os.ExpandEnv(path))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
		// Config file not found; ignore error and use defaults
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("receiver.host", DefaultHost)
	v.SetDefault("receiver.port", DefaultPort)
	v.SetDefault("receiver.chunk_size", DefaultChunkSize)
	// The shipped producer writes image$timecode$fragment segments
	v.SetDefault("receiver.variant", "timecode")
	v.SetDefault("receiver.accept_timeout", time.Duration(0))

	v.SetDefault("producer.enabled", true)
	v.SetDefault("producer.command", "java")
	v.SetDefault("producer.classpath", "target/amazon-kinesis-video-streams-parser-library-1.0.5-SNAPSHOT.jar")
	v.SetDefault("producer.class", "com.amazonaws.kinesisvideo.parser.examples.SocketImageProviderExample")
	v.SetDefault("producer.stream", "josvijay-demo-android")
	v.SetDefault("producer.region", "us-west-2")
	v.SetDefault("producer.kill_on_exit", false)

	v.SetDefault("display.mode", "viewer")
	v.SetDefault("display.keep_files", false)

	v.SetDefault("web.addr", "localhost:2010")
	v.SetDefault("web.open", false)
}

// ConfigFileUsed returns the config file that was loaded, if any
func ConfigFileUsed() string {
	return v.ConfigFileUsed()
}

func GetHost() string {
	return v.GetString("receiver.host")
}

func GetPort() int {
	return v.GetInt("receiver.port")
}

// GetChunkSize returns the size of a single socket read
func GetChunkSize() int {
	if n := v.GetInt("receiver.chunk_size"); n > 0 {
		return n
	}
	return DefaultChunkSize
}

func GetVariant() string {
	return v.GetString("receiver.variant")
}

// GetAcceptTimeout returns how long to wait for the producer to connect; zero waits forever
func GetAcceptTimeout() time.Duration {
	return v.GetDuration("receiver.accept_timeout")
}

func IsProducerEnabled() bool {
	return v.GetBool("producer.enabled")
}

func GetProducerCommand() string {
	return v.GetString("producer.command")
}

func GetProducerClasspath() string {
	return v.GetString("producer.classpath")
}

func GetProducerClass() string {
	return v.GetString("producer.class")
}

// GetStream returns the stream/source identifier handed to the producer
func GetStream() string {
	return v.GetString("producer.stream")
}

func GetRegion() string {
	return v.GetString("producer.region")
}

func KillProducerOnExit() bool {
	return v.GetBool("producer.kill_on_exit")
}

func GetDisplayMode() string {
	return v.GetString("display.mode")
}

func KeepDisplayFiles() bool {
	return v.GetBool("display.keep_files")
}

func GetWebAddr() string {
	return v.GetString("web.addr")
}

func OpenWebPreview() bool {
	return v.GetBool("web.open")
}
