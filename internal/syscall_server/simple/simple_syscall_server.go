package simple

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"reflect"

	"github.com/AnishMulay/sandos/internal/backing_store"
	"github.com/AnishMulay/sandos/internal/communication"
	"github.com/AnishMulay/sandos/internal/descriptor_service"
	"github.com/AnishMulay/sandos/internal/file_table"
	"github.com/AnishMulay/sandos/internal/log_service"
	"github.com/AnishMulay/sandos/internal/open_file"
	"github.com/AnishMulay/sandos/internal/process_registry"
	ss "github.com/AnishMulay/sandos/internal/syscall_server"
)

type SimpleSyscallServer struct {
	comm communication.Communicator
	ds   descriptor_service.DescriptorService
	ls   log_service.LogService
}

func NewSimpleSyscallServer(
	comm communication.Communicator,
	ds descriptor_service.DescriptorService,
	ls log_service.LogService,
) *SimpleSyscallServer {
	return &SimpleSyscallServer{
		comm: comm,
		ds:   ds,
		ls:   ls,
	}
}

func (s *SimpleSyscallServer) Start() error {
	s.ls.Info(log_service.LogEvent{Message: "Starting syscall server"})

	s.registerPayloads()
	return s.comm.Start(s.handleMessage)
}

func (s *SimpleSyscallServer) Stop() error {
	s.ls.Info(log_service.LogEvent{Message: "Stopping syscall server"})
	return s.comm.Stop()
}

func (s *SimpleSyscallServer) registerPayloads() {
	s.comm.RegisterPayloadType(ss.MsgSysBootstrap, reflect.TypeOf(ss.BootstrapRequest{}))
	s.comm.RegisterPayloadType(ss.MsgSysFork, reflect.TypeOf(ss.ForkRequest{}))
	s.comm.RegisterPayloadType(ss.MsgSysExit, reflect.TypeOf(ss.ExitRequest{}))
	s.comm.RegisterPayloadType(ss.MsgSysOpen, reflect.TypeOf(ss.OpenRequest{}))
	s.comm.RegisterPayloadType(ss.MsgSysClose, reflect.TypeOf(ss.CloseRequest{}))
	s.comm.RegisterPayloadType(ss.MsgSysDup2, reflect.TypeOf(ss.Dup2Request{}))
	s.comm.RegisterPayloadType(ss.MsgSysRead, reflect.TypeOf(ss.ReadRequest{}))
	s.comm.RegisterPayloadType(ss.MsgSysWrite, reflect.TypeOf(ss.WriteRequest{}))
	s.comm.RegisterPayloadType(ss.MsgSysSeek, reflect.TypeOf(ss.SeekRequest{}))
	s.comm.RegisterPayloadType(ss.MsgSysListProcs, reflect.TypeOf(ss.ListProcsRequest{}))
}

// Central router for all incoming syscall messages
func (s *SimpleSyscallServer) handleMessage(msg communication.Message) (*communication.Response, error) {
	ctx := context.Background()

	switch msg.Type {
	case ss.MsgSysBootstrap:
		req := msg.Payload.(ss.BootstrapRequest)
		pid, err := s.ds.BootstrapProcess(ctx, req.StdinPath, req.StdoutPath, req.StderrPath)
		return s.respond(ss.BootstrapResponse{PID: pid}, err)

	case ss.MsgSysFork:
		req := msg.Payload.(ss.ForkRequest)
		child, err := s.ds.ForkProcess(ctx, req.PID)
		return s.respond(ss.ForkResponse{ChildPID: child}, err)

	case ss.MsgSysExit:
		req := msg.Payload.(ss.ExitRequest)
		err := s.ds.ExitProcess(ctx, req.PID)
		return s.respond(nil, err)

	case ss.MsgSysOpen:
		req := msg.Payload.(ss.OpenRequest)
		fd, err := s.ds.Open(ctx, req.PID, req.Path, backing_store.Flags(req.Flags), req.Mode)
		return s.respond(ss.OpenResponse{FD: fd}, err)

	case ss.MsgSysClose:
		req := msg.Payload.(ss.CloseRequest)
		err := s.ds.Close(ctx, req.PID, req.FD)
		return s.respond(nil, err)

	case ss.MsgSysDup2:
		req := msg.Payload.(ss.Dup2Request)
		err := s.ds.Dup2(ctx, req.PID, req.OldFD, req.NewFD)
		return s.respond(nil, err)

	case ss.MsgSysRead:
		req := msg.Payload.(ss.ReadRequest)
		data, err := s.ds.Read(ctx, req.PID, req.FD, req.Length)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		return s.respond(ss.ReadResponse{Data: data}, err)

	case ss.MsgSysWrite:
		req := msg.Payload.(ss.WriteRequest)
		n, err := s.ds.Write(ctx, req.PID, req.FD, req.Data)
		return s.respond(ss.WriteResponse{Written: n}, err)

	case ss.MsgSysSeek:
		req := msg.Payload.(ss.SeekRequest)
		off, err := s.ds.Seek(ctx, req.PID, req.FD, req.Offset, req.Whence)
		return s.respond(ss.SeekResponse{Offset: off}, err)

	case ss.MsgSysListProcs:
		infos, err := s.ds.ListProcesses(ctx)
		return s.respond(infos, err)

	default:
		s.ls.Warn(log_service.LogEvent{
			Message:  "Unknown syscall message type",
			Metadata: map[string]any{"type": msg.Type},
		})
		return &communication.Response{Code: communication.CodeBadRequest}, nil
	}
}

func (s *SimpleSyscallServer) respond(body any, err error) (*communication.Response, error) {
	if err != nil {
		return &communication.Response{
			Code: codeForError(err),
			Body: []byte(err.Error()),
		}, nil
	}

	if body == nil {
		return &communication.Response{Code: communication.CodeOK}, nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to marshal syscall response",
			Metadata: map[string]any{"error": err.Error()},
		})
		return &communication.Response{Code: communication.CodeInternal}, nil
	}

	return &communication.Response{
		Code: communication.CodeOK,
		Body: data,
	}, nil
}

func codeForError(err error) communication.SandCode {
	switch {
	case errors.Is(err, file_table.ErrTooManyOpenFiles):
		return communication.CodeTooMany
	case errors.Is(err, file_table.ErrBadDescriptor),
		errors.Is(err, file_table.ErrTableInUse),
		errors.Is(err, backing_store.ErrInvalidFlags),
		errors.Is(err, backing_store.ErrInvalidPath),
		errors.Is(err, backing_store.ErrNotSupported),
		errors.Is(err, descriptor_service.ErrInvalidLength),
		errors.Is(err, open_file.ErrNotReadable),
		errors.Is(err, open_file.ErrNotWritable),
		errors.Is(err, open_file.ErrInvalidWhence),
		errors.Is(err, open_file.ErrNegativeOffset):
		return communication.CodeBadRequest
	case errors.Is(err, backing_store.ErrNotFound),
		errors.Is(err, process_registry.ErrProcessNotFound):
		return communication.CodeNotFound
	default:
		return communication.CodeInternal
	}
}
