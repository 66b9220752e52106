package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/AnishMulay/sandos/internal/backing_store"
	"github.com/AnishMulay/sandos/internal/communication"
	grpccomm "github.com/AnishMulay/sandos/internal/communication/grpc"
	logservice "github.com/AnishMulay/sandos/internal/log_service"
	locallog "github.com/AnishMulay/sandos/internal/log_service/localdisc"
	ss "github.com/AnishMulay/sandos/internal/syscall_server"
)

// Scripted syscall session against a running kernel. Walks through the
// descriptor lifecycle: bootstrap, stdout write, open, dup2 aliasing, fork
// and exit.
func main() {
	serverAddr := "localhost:9000"
	if len(os.Args) > 1 {
		serverAddr = os.Args[1]
	}

	ls := locallog.NewLocalDiscLogService("./run/shell/logs", "shell", logservice.InfoLevel)
	comm := grpccomm.NewGRPCCommunicator(":0", ls)

	ctx := context.Background()

	// 1. Bootstrap a process with console standard streams
	log.Println("1. Bootstrapping process...")
	var boot ss.BootstrapResponse
	send(ctx, comm, serverAddr, ss.MsgSysBootstrap, ss.BootstrapRequest{
		StdinPath:  "con:",
		StdoutPath: "con:",
		StderrPath: "con:",
	}, &boot)
	pid := boot.PID
	log.Printf("   PID: %s", pid)

	// 2. Write to stdout (descriptor 1)
	log.Println("2. Writing to stdout...")
	send(ctx, comm, serverAddr, ss.MsgSysWrite, ss.WriteRequest{
		PID: pid, FD: 1, Data: []byte("hello from the shell\n"),
	}, nil)

	// 3. Open a file read-write
	log.Println("3. Opening /notes.txt...")
	var opened ss.OpenResponse
	send(ctx, comm, serverAddr, ss.MsgSysOpen, ss.OpenRequest{
		PID:   pid,
		Path:  "/notes.txt",
		Flags: int(backing_store.FlagReadWrite | backing_store.FlagCreate),
		Mode:  0644,
	}, &opened)
	fd := opened.FD
	log.Printf("   Descriptor: %d", fd)

	// 4. Write, rewind, read back
	send(ctx, comm, serverAddr, ss.MsgSysWrite, ss.WriteRequest{
		PID: pid, FD: fd, Data: []byte("the quick brown fox"),
	}, nil)
	send(ctx, comm, serverAddr, ss.MsgSysSeek, ss.SeekRequest{PID: pid, FD: fd}, nil)

	var read ss.ReadResponse
	send(ctx, comm, serverAddr, ss.MsgSysRead, ss.ReadRequest{PID: pid, FD: fd, Length: 64}, &read)
	log.Printf("4. Read back: %q", string(read.Data))

	// 5. dup2 and observe the shared cursor
	log.Println("5. Duplicating descriptor...")
	send(ctx, comm, serverAddr, ss.MsgSysDup2, ss.Dup2Request{PID: pid, OldFD: fd, NewFD: 10}, nil)
	send(ctx, comm, serverAddr, ss.MsgSysSeek, ss.SeekRequest{PID: pid, FD: 10}, nil)
	send(ctx, comm, serverAddr, ss.MsgSysRead, ss.ReadRequest{PID: pid, FD: fd, Length: 9}, &read)
	log.Printf("   Read via original after seek on alias: %q", string(read.Data))

	// 6. Fork and close the child's copy
	log.Println("6. Forking...")
	var fork ss.ForkResponse
	send(ctx, comm, serverAddr, ss.MsgSysFork, ss.ForkRequest{PID: pid}, &fork)
	log.Printf("   Child PID: %s", fork.ChildPID)
	send(ctx, comm, serverAddr, ss.MsgSysClose, ss.CloseRequest{PID: fork.ChildPID, FD: fd}, nil)
	send(ctx, comm, serverAddr, ss.MsgSysRead, ss.ReadRequest{PID: pid, FD: fd, Length: 10}, &read)
	log.Printf("   Parent still reads: %q", string(read.Data))

	// 7. Exit both processes
	log.Println("7. Exiting...")
	send(ctx, comm, serverAddr, ss.MsgSysExit, ss.ExitRequest{PID: fork.ChildPID}, nil)
	send(ctx, comm, serverAddr, ss.MsgSysExit, ss.ExitRequest{PID: pid}, nil)

	log.Println("--- Session complete ---")
}

func send(ctx context.Context, comm communication.Communicator, to, msgType string, payload any, out any) {
	msg := communication.Message{
		From:    "shell",
		Type:    msgType,
		Payload: payload,
	}

	resp, err := comm.Send(ctx, to, msg)
	if err != nil {
		log.Fatalf("%s failed: %v", msgType, err)
	}
	if resp.Code != communication.CodeOK {
		log.Fatalf("%s rejected: %s %s", msgType, resp.Code, string(resp.Body))
	}

	if out != nil && len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			log.Fatalf("%s: bad response body: %v", msgType, err)
		}
	}
}
