package bus

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
)

func TestKafkaConfig_Defaults(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{"valid", KafkaConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g"}, false},
		{"empty brokers", KafkaConfig{ConsumerGroup: "g"}, true},
		{"empty consumer group", KafkaConfig{Brokers: []string{"localhost:9092"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.setDefaults()
			if (err != nil) != tt.wantErr {
				t.Fatalf("setDefaults() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (cfg.ClientID != "dd-output" || cfg.Version != "2.8.0") {
				t.Errorf("defaults not applied: %+v", cfg)
			}
		})
	}
}

func TestKafkaConfig_SaramaConfig(t *testing.T) {
	cfg := KafkaConfig{Brokers: []string{"b:9092"}, ConsumerGroup: "g"}
	if err := cfg.setDefaults(); err != nil {
		t.Fatal(err)
	}
	sc, err := cfg.saramaConfig()
	if err != nil {
		t.Fatalf("saramaConfig() error = %v", err)
	}
	if !sc.Producer.Return.Successes {
		t.Error("sync producer needs Return.Successes")
	}
	if sc.Producer.RequiredAcks != sarama.WaitForAll {
		t.Error("producer should wait for all replicas")
	}
	if sc.ClientID != "dd-output" {
		t.Errorf("ClientID = %q", sc.ClientID)
	}

	cfg.Version = "invalid"
	if _, err := cfg.saramaConfig(); err == nil {
		t.Error("invalid version should fail")
	}
}

func TestEncodeMessage(t *testing.T) {
	ev := Event{ID: "id-1", Type: TopicMeasureCompleted, Source: "test", Payload: map[string]any{"acc": 0.5}}
	msg, err := encodeMessage(TopicMeasureCompleted, ev)
	if err != nil {
		t.Fatalf("encodeMessage() error = %v", err)
	}
	if msg.Topic != TopicMeasureCompleted {
		t.Errorf("Topic = %s", msg.Topic)
	}
	if key, _ := msg.Key.Encode(); string(key) != "id-1" {
		t.Errorf("Key = %s, want event id", key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != TopicMeasureCompleted {
		t.Errorf("unexpected headers %+v", msg.Headers)
	}

	data, _ := msg.Value.Encode()
	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ID != "id-1" || decoded.Source != "test" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestParseKafkaBrokers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"single", "localhost:9092", []string{"localhost:9092"}},
		{"multiple", "b1:9092,b2:9092,b3:9092", []string{"b1:9092", "b2:9092", "b3:9092"}},
		{"whitespace", "b1:9092 , b2:9092", []string{"b1:9092", "b2:9092"}},
		{"trailing comma", "b1:9092,", []string{"b1:9092"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseKafkaBrokers(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseKafkaBrokers() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestKafkaBus_Interface(t *testing.T) {
	var _ Bus = (*KafkaBus)(nil)
}

func TestKafkaBus_ClosedRejects(t *testing.T) {
	b := &KafkaBus{handlers: make(map[string][]Handler), stop: make(chan struct{}), closed: true}

	if err := b.Close(); err != nil {
		t.Errorf("Close() on a closed bus returned %v", err)
	}
	if err := b.Publish(context.Background(), "t", Event{ID: "x"}); err == nil {
		t.Error("Publish() after Close() should fail")
	}
	if err := b.Subscribe(context.Background(), "t", func(ctx context.Context, event Event) error { return nil }); err == nil {
		t.Error("Subscribe() after Close() should fail")
	}
}
