package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/AnishMulay/sandos/internal/backing_store"
	bsinmemory "github.com/AnishMulay/sandos/internal/backing_store/inmemory"
	bslocaldisc "github.com/AnishMulay/sandos/internal/backing_store/localdisc"
	"github.com/AnishMulay/sandos/internal/communication"
	grpccomm "github.com/AnishMulay/sandos/internal/communication/grpc"
	httpcomm "github.com/AnishMulay/sandos/internal/communication/http"
	"github.com/AnishMulay/sandos/internal/descriptor_service"
	logservice "github.com/AnishMulay/sandos/internal/log_service"
	locallog "github.com/AnishMulay/sandos/internal/log_service/localdisc"
	"github.com/AnishMulay/sandos/internal/process_registry"
	"github.com/AnishMulay/sandos/internal/syscall_server/simple"
)

type KernelConfig struct {
	ListenAddress string `yaml:"listen_address"`
	Communicator  struct {
		Type string `yaml:"type"`
	} `yaml:"communicator"`
	BackingStore struct {
		Type string `yaml:"type"`
		Root string `yaml:"root"`
	} `yaml:"backing_store"`
	LogDir      string `yaml:"log_dir"`
	MinLogLevel string `yaml:"min_log_level"`
}

func defaultConfig() *KernelConfig {
	config := &KernelConfig{
		ListenAddress: ":9000",
		LogDir:        "./run/kernel/logs",
		MinLogLevel:   logservice.InfoLevel,
	}
	config.Communicator.Type = "grpc"
	config.BackingStore.Type = "inmemory"
	config.BackingStore.Root = "./run/kernel/store"
	return config
}

func LoadConfig(path string) (*KernelConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := defaultConfig()

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %v", err)
		}

		data, err := yaml.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %v", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write default config: %v", err)
		}

		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	return config, nil
}

func main() {
	configPath := "./config/kernel.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ls := locallog.NewLocalDiscLogService(config.LogDir, "kernel", config.MinLogLevel)

	var bs backing_store.BackingStore
	switch config.BackingStore.Type {
	case "localdisc":
		bs = bslocaldisc.NewLocalDiscBackingStore(config.BackingStore.Root, ls)
	default:
		bs = bsinmemory.NewInMemoryBackingStore(ls)
	}

	var comm communication.Communicator
	switch config.Communicator.Type {
	case "http":
		comm = httpcomm.NewHTTPCommunicator(config.ListenAddress, ls)
	default:
		comm = grpccomm.NewGRPCCommunicator(config.ListenAddress, ls)
	}

	registry := process_registry.NewInMemoryProcessRegistry()
	ds := descriptor_service.NewDefaultDescriptorService(bs, registry, ls)
	srv := simple.NewSimpleSyscallServer(comm, ds, ls)

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to start syscall server: %v", err)
	}
	log.Printf("Kernel listening on %s", config.ListenAddress)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Shutting down...")
	if err := srv.Stop(); err != nil {
		log.Printf("Error stopping syscall server: %v", err)
	}
}
