package protocol

// Result is the outcome of a request, used both on the wire (OverallResult, OutResult) and as the value a device
// handler reports.
type Result string

const (
	Success              Result = "Success"
	PartialFailure       Result = "PartialFailure"
	Failure              Result = "Failure"
	DeviceUnavailable    Result = "DeviceUnavailable"
	Busy                 Result = "Busy"
	Aborted              Result = "Aborted"
	TimedOut             Result = "TimedOut"
	CommunicationError   Result = "CommunicationError"
	FormatError          Result = "FormatError"
	ParsingError         Result = "ParsingError"
	ValidationError      Result = "ValidationError"
	MissingMandatoryData Result = "MissingMandatoryData"
)

var results = []Result{
	Success, PartialFailure, Failure, DeviceUnavailable, Busy, Aborted, TimedOut, CommunicationError, FormatError,
	ParsingError, ValidationError, MissingMandatoryData,
}

var resultSet = func() map[Result]struct{} {
	m := make(map[Result]struct{}, len(results))
	for _, r := range results {
		m[r] = struct{}{}
	}
	return m
}()

func Results() []Result {
	res := make([]Result, len(results))
	copy(res, results)
	return res
}

// Valid reports whether r is one of the defined results.
func (r Result) Valid() bool {
	_, ok := resultSet[r]
	return ok
}

func ParseResult(s string) (Result, bool) {
	r := Result(s)
	return r, r.Valid()
}

func (r Result) String() string {
	return string(r)
}
