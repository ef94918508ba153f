package session

// OperationResult collects the failures the engine reported while an
// operation ran.
type OperationResult struct {
	Failures []error
}

func (r *OperationResult) addFailure(err error) {
	r.Failures = append(r.Failures, err)
}

// IsSuccess reports whether no failure was reported.
func (r *OperationResult) IsSuccess() bool {
	return len(r.Failures) == 0
}

// Check returns the first failure, or nil.
func (r *OperationResult) Check() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return r.Failures[0]
}

// TransferOperationResult is the result of PutFiles and GetFiles.
type TransferOperationResult struct {
	OperationResult
	Transfers []*TransferEvent
}

// IsSuccess also considers the outcome of every transfer.
func (r *TransferOperationResult) IsSuccess() bool {
	return r.Check() == nil
}

// Check returns the first failure or the first failed transfer.
func (r *TransferOperationResult) Check() error {
	if err := r.OperationResult.Check(); err != nil {
		return err
	}
	return firstTransferError(r.Transfers)
}

// RemovalOperationResult is the result of RemoveFiles.
type RemovalOperationResult struct {
	OperationResult
	Removals []*RemovalEvent
}

// IsSuccess also considers the outcome of every removal.
func (r *RemovalOperationResult) IsSuccess() bool {
	return r.Check() == nil
}

// Check returns the first failure or the first failed removal.
func (r *RemovalOperationResult) Check() error {
	if err := r.OperationResult.Check(); err != nil {
		return err
	}
	return firstRemovalError(r.Removals)
}

// SynchronizationResult is the result of SynchronizeDirectories.
type SynchronizationResult struct {
	OperationResult
	Uploads   []*TransferEvent
	Downloads []*TransferEvent
	Removals  []*RemovalEvent
}

// IsSuccess also considers the outcome of every transfer and removal.
func (r *SynchronizationResult) IsSuccess() bool {
	return r.Check() == nil
}

// Check returns the first failure, failed transfer or failed removal.
func (r *SynchronizationResult) Check() error {
	if err := r.OperationResult.Check(); err != nil {
		return err
	}
	if err := firstTransferError(r.Uploads); err != nil {
		return err
	}
	if err := firstTransferError(r.Downloads); err != nil {
		return err
	}
	return firstRemovalError(r.Removals)
}

// CommandExecutionResult is the result of ExecuteCommand.
type CommandExecutionResult struct {
	OperationResult
	Output      string
	ErrorOutput string
	ExitCode    int
}

func firstTransferError(events []*TransferEvent) error {
	for _, ev := range events {
		if err := ev.Err(); err != nil {
			return err
		}
	}
	return nil
}

func firstRemovalError(events []*RemovalEvent) error {
	for _, ev := range events {
		if ev.Error != nil {
			return ev.Error
		}
	}
	return nil
}
