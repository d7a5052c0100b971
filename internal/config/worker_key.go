package config

type WorkerKeyStruct struct {
	// PersistResultsQueue holds results that could not be saved before their
	// session closed.
	PersistResultsQueue string
	// DeadResultsQueue holds queued results that kept failing to save.
	DeadResultsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistResultsQueue: "persist_results_queue",
	DeadResultsQueue:    "persist_results_queue_dead",
}
