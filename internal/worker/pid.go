package worker

import "os"

func processPID() int { return os.Getpid() }
