package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/AnishMulay/sandos/internal/backing_store"
	"github.com/AnishMulay/sandos/internal/communication"
	grpccomm "github.com/AnishMulay/sandos/internal/communication/grpc"
	logservice "github.com/AnishMulay/sandos/internal/log_service"
	locallog "github.com/AnishMulay/sandos/internal/log_service/localdisc"
	ss "github.com/AnishMulay/sandos/internal/syscall_server"
)

type MCPConfig struct {
	Kernels []struct {
		ID      string `yaml:"id"`
		Address string `yaml:"address"`
	} `yaml:"kernels"`
	DefaultKernel string `yaml:"default_kernel"`
}

type KernelRegistry struct {
	Kernels       map[string]string
	DefaultKernel string
	Communicator  communication.Communicator
}

func LoadConfig(path string) (*MCPConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := &MCPConfig{}
		config.DefaultKernel = "kernel1"
		config.Kernels = []struct {
			ID      string `yaml:"id"`
			Address string `yaml:"address"`
		}{
			{ID: "kernel1", Address: "localhost:9000"},
		}

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

	config := &MCPConfig{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	return config, nil
}

func (r *KernelRegistry) resolve(request mcp.CallToolRequest) (string, error) {
	kernelID := request.GetString("kernel", r.DefaultKernel)
	addr, ok := r.Kernels[kernelID]
	if !ok {
		return "", fmt.Errorf("kernel %s not found", kernelID)
	}
	return addr, nil
}

func (r *KernelRegistry) call(ctx context.Context, addr, msgType string, payload any, out any) error {
	msg := communication.Message{
		From:    "mcp-server",
		Type:    msgType,
		Payload: payload,
	}

	resp, err := r.Communicator.Send(ctx, addr, msg)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	if resp.Code != communication.CodeOK {
		return fmt.Errorf("kernel rejected request: %s %s", resp.Code, string(resp.Body))
	}

	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return fmt.Errorf("bad response body: %v", err)
		}
	}
	return nil
}

func addTools(s *server.MCPServer, registry *KernelRegistry) {
	listKernelsTool := mcp.NewTool("list_kernels",
		mcp.WithDescription("List all configured kernel nodes"),
	)
	s.AddTool(listKernelsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := "Available kernels:\n"
		for id, addr := range registry.Kernels {
			result += fmt.Sprintf("- %s: %s\n", id, addr)
		}
		result += fmt.Sprintf("Default kernel: %s\n", registry.DefaultKernel)
		return mcp.NewToolResultText(result), nil
	})

	bootstrapTool := mcp.NewTool("bootstrap_process",
		mcp.WithDescription("Create a process with console standard streams on descriptors 0, 1 and 2"),
	)
	s.AddTool(bootstrapTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		addr, err := registry.resolve(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var boot ss.BootstrapResponse
		req := ss.BootstrapRequest{StdinPath: "con:", StdoutPath: "con:", StderrPath: "con:"}
		if err := registry.call(ctx, addr, ss.MsgSysBootstrap, req, &boot); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Process created with PID %s", boot.PID)), nil
	})

	openTool := mcp.NewTool("open_file",
		mcp.WithDescription("Open a file for a process, returning the lowest free descriptor"),
		mcp.WithString("pid", mcp.Required(), mcp.Description("Process ID")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to open")),
	)
	s.AddTool(openTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pid, err := request.RequireString("pid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		addr, err := registry.resolve(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var opened ss.OpenResponse
		req := ss.OpenRequest{
			PID:   pid,
			Path:  path,
			Flags: int(backing_store.FlagReadWrite | backing_store.FlagCreate),
			Mode:  0644,
		}
		if err := registry.call(ctx, addr, ss.MsgSysOpen, req, &opened); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Opened %s as descriptor %d", path, opened.FD)), nil
	})

	writeTool := mcp.NewTool("write_file",
		mcp.WithDescription("Write data through a descriptor at its current cursor"),
		mcp.WithString("pid", mcp.Required(), mcp.Description("Process ID")),
		mcp.WithNumber("fd", mcp.Required(), mcp.Description("Descriptor number")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Data to write")),
	)
	s.AddTool(writeTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pid, err := request.RequireString("pid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		fd, err := request.RequireInt("fd")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		content, err := request.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		addr, err := registry.resolve(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var wrote ss.WriteResponse
		req := ss.WriteRequest{PID: pid, FD: fd, Data: []byte(content)}
		if err := registry.call(ctx, addr, ss.MsgSysWrite, req, &wrote); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Wrote %d bytes", wrote.Written)), nil
	})

	readTool := mcp.NewTool("read_file",
		mcp.WithDescription("Read data through a descriptor at its current cursor"),
		mcp.WithString("pid", mcp.Required(), mcp.Description("Process ID")),
		mcp.WithNumber("fd", mcp.Required(), mcp.Description("Descriptor number")),
		mcp.WithNumber("length", mcp.Required(), mcp.Description("Maximum bytes to read")),
	)
	s.AddTool(readTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pid, err := request.RequireString("pid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		fd, err := request.RequireInt("fd")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		length, err := request.RequireInt("length")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		addr, err := registry.resolve(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var read ss.ReadResponse
		req := ss.ReadRequest{PID: pid, FD: fd, Length: length}
		if err := registry.call(ctx, addr, ss.MsgSysRead, req, &read); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Read: %s", string(read.Data))), nil
	})

	closeTool := mcp.NewTool("close_file",
		mcp.WithDescription("Close a descriptor"),
		mcp.WithString("pid", mcp.Required(), mcp.Description("Process ID")),
		mcp.WithNumber("fd", mcp.Required(), mcp.Description("Descriptor number")),
	)
	s.AddTool(closeTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pid, err := request.RequireString("pid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		fd, err := request.RequireInt("fd")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		addr, err := registry.resolve(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := registry.call(ctx, addr, ss.MsgSysClose, ss.CloseRequest{PID: pid, FD: fd}, nil); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Closed descriptor %d", fd)), nil
	})

	dup2Tool := mcp.NewTool("dup2",
		mcp.WithDescription("Make one descriptor an alias of another, closing the target first if open"),
		mcp.WithString("pid", mcp.Required(), mcp.Description("Process ID")),
		mcp.WithNumber("oldfd", mcp.Required(), mcp.Description("Source descriptor")),
		mcp.WithNumber("newfd", mcp.Required(), mcp.Description("Target descriptor")),
	)
	s.AddTool(dup2Tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pid, err := request.RequireString("pid")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		oldfd, err := request.RequireInt("oldfd")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		newfd, err := request.RequireInt("newfd")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		addr, err := registry.resolve(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		req := ss.Dup2Request{PID: pid, OldFD: oldfd, NewFD: newfd}
		if err := registry.call(ctx, addr, ss.MsgSysDup2, req, nil); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Descriptor %d now aliases %d", newfd, oldfd)), nil
	})

	listProcsTool := mcp.NewTool("list_processes",
		mcp.WithDescription("List processes and their open descriptors"),
	)
	s.AddTool(listProcsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		addr, err := registry.resolve(request)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var infos []struct {
			PID         string `json:"pid"`
			Descriptors []int  `json:"descriptors"`
		}
		if err := registry.call(ctx, addr, ss.MsgSysListProcs, ss.ListProcsRequest{}, &infos); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		result := "Processes:\n"
		for _, info := range infos {
			result += fmt.Sprintf("- %s: descriptors %v\n", info.PID, info.Descriptors)
		}
		return mcp.NewToolResultText(result), nil
	})
}

func main() {
	config, err := LoadConfig("./config/mcp.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ls := locallog.NewLocalDiscLogService("./run/mcp/logs", "mcp-server", logservice.InfoLevel)

	registry := &KernelRegistry{
		Kernels:       make(map[string]string),
		DefaultKernel: config.DefaultKernel,
		Communicator:  grpccomm.NewGRPCCommunicator(":0", ls),
	}
	for _, kernel := range config.Kernels {
		registry.Kernels[kernel.ID] = kernel.Address
	}

	s := server.NewMCPServer(
		"sandos",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	addTools(s, registry)

	if err := server.ServeStdio(s); err != nil {
		fmt.Printf("Server error: %v\n", err)
	}
}
