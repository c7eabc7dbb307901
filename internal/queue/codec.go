package queue

import (
	"encoding/json"
	"sort"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// EncodingVersion is written into every payload. Payloads with any other
// version are dead-lettered.
const EncodingVersion = 1

// envelope is the wire form of a job. Field order and sorted map keys make
// the encoding canonical, so equal jobs encode to equal bytes and the payload
// itself serves as the dedup identity.
type envelope struct {
	Version     int               `json:"v"`
	Kind        string            `json:"kind"`
	Key         map[string]string `json:"key"`
	Injectables []string          `json:"inject,omitempty"`
}

// Encode serializes job with the injectables the consumer must re-bind.
func Encode(job types.CalculationJob, injectables []string) (string, error) {
	if err := job.Validate(); err != nil {
		return "", types.Encodingf("%v", err)
	}
	inject := append([]string(nil), injectables...)
	sort.Strings(inject)
	data, err := json.Marshal(envelope{
		Version:     EncodingVersion,
		Kind:        string(job.Kind),
		Key:         job.Key.Fields(job.Kind.Shape()),
		Injectables: inject,
	})
	if err != nil {
		return "", types.Encodingf("marshalling %s: %v", job, err)
	}
	return string(data), nil
}

// Decode parses a payload and checks that every injectable it names is bound
// on this consumer.
func Decode(payload string, bound map[string]bool) (types.CalculationJob, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return types.CalculationJob{}, types.Encodingf("unmarshalling payload: %v", err)
	}
	if env.Version != EncodingVersion {
		return types.CalculationJob{}, types.Encodingf("unsupported encoding version %d", env.Version)
	}
	kind, err := types.ParseMetricKind(env.Kind)
	if err != nil {
		return types.CalculationJob{}, types.Encodingf("%v", err)
	}
	key, err := types.KeyFromFields(kind.Shape(), env.Key)
	if err != nil {
		return types.CalculationJob{}, types.Encodingf("%s key: %v", kind, err)
	}
	for _, name := range env.Injectables {
		if !bound[name] {
			return types.CalculationJob{}, types.Encodingf("injectable %q is not bound", name)
		}
	}
	return types.NewJob(kind, key), nil
}
