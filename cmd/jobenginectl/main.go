// cmd/jobenginectl is a demo/embedding-example CLI: it exercises
// engine.New and the Client facade end to end against the registered
// builtin handlers, the way cmd/mailgrid exercised the original campaign
// pipeline from the command line.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/bravo1goingdark/jobengine/engine"
	_ "github.com/bravo1goingdark/jobengine/handlers"
	"github.com/bravo1goingdark/jobengine/internal/types"
	"github.com/spf13/pflag"
)

func main() {
	// Every host binary that wants PROCESS-mode workers must call
	// workerpool.Init() as the very first statement: if this process was
	// re-executed as a worker child, Init runs the child loop and never
	// returns.
	if engine.Init() {
		return
	}

	var (
		funcName    string
		argsJSON    string
		workerType  string
		numWorkers  int
		storagePath string
		waitSeconds int
		cancelAfter int
		clearForce  bool
	)

	pflag.StringVar(&funcName, "func", "builtin_identity", "registered handler id to schedule")
	pflag.StringVar(&argsJSON, "args", `{"value": 42}`, "JSON-encoded args passed to the handler")
	pflag.StringVar(&workerType, "worker-type", "THREAD", "THREAD or PROCESS")
	pflag.IntVar(&numWorkers, "workers", 2, "number of execution slots")
	pflag.StringVar(&storagePath, "storage", "", "bbolt file path, empty for in-memory")
	pflag.IntVar(&waitSeconds, "wait", 5, "seconds to wait for completion, 0 to skip waiting")
	pflag.IntVar(&cancelAfter, "cancel-after-ms", 0, "cancel the job after this many milliseconds, 0 to never cancel")
	pflag.BoolVar(&clearForce, "clear", false, "clear all jobs and exit")
	pflag.Parse()

	cfg := engine.DefaultConfig()
	cfg.WorkerType = engine.WorkerMode(workerType)
	cfg.NumWorkers = numWorkers
	cfg.StoragePath = storagePath

	e, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("jobenginectl: start engine: %v", err)
	}
	defer e.Shutdown(false)

	client := e.Client()

	if clearForce {
		if err := client.Clear(true); err != nil {
			log.Fatalf("jobenginectl: clear: %v", err)
		}
		fmt.Println("cleared all jobs")
		return
	}

	id, err := client.Schedule(types.Job{
		Func:        funcName,
		Args:        json.RawMessage(argsJSON),
		Cancellable: cancelAfter > 0,
	})
	if err != nil {
		log.Fatalf("jobenginectl: schedule: %v", err)
	}
	fmt.Printf("scheduled job %s (func=%s)\n", id, funcName)

	if cancelAfter > 0 {
		go func() {
			time.Sleep(time.Duration(cancelAfter) * time.Millisecond)
			if err := client.Cancel(id); err != nil {
				log.Printf("jobenginectl: cancel: %v", err)
			}
		}()
	}

	if waitSeconds <= 0 {
		return
	}

	job, err := client.Wait(id, time.Duration(waitSeconds)*time.Second)
	if err != nil {
		log.Fatalf("jobenginectl: wait: %v", err)
	}
	printJob(job)
}

func printJob(job types.Job) {
	out, _ := json.MarshalIndent(job, "", "  ")
	fmt.Println(string(out))
	if job.State != types.Completed {
		os.Exit(1)
	}
}
