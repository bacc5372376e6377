package bus

import (
	"fmt"
	"strings"

	"github.com/corner4world/deepdetect/internal/config"
	"github.com/corner4world/deepdetect/internal/pkg/errors"
	"github.com/corner4world/deepdetect/internal/pkg/logger"
)

// NewBus creates the configured bus, wrapped in an event journal when a
// journal path is set.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	var b Bus
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		b = NewMemoryBus(log)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}
		group := cfg.KafkaGroup
		if group == "" {
			group = "dd-output"
		}
		kb, err := NewKafkaBus(KafkaConfig{Brokers: brokers, ConsumerGroup: group}, log)
		if err != nil {
			return nil, err
		}
		b = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.JournalPath == "" {
		return b, nil
	}
	journal, err := OpenJournal(cfg.JournalPath)
	if err != nil {
		b.Close()
		return nil, err
	}
	return NewJournaledBus(b, journal, log), nil
}
