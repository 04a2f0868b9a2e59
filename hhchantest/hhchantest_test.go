package hhchantest_test

import (
	"testing"

	"github.com/funkygao/hhchan"
	"github.com/funkygao/hhchan/hhchantest"
)

func memoryOnlyFactory(t *testing.T) (*hhchan.Sender[[]byte], *hhchan.Receiver[[]byte]) {
	tx, rx, err := hhchan.New(t.Name(), t.TempDir(), hhchan.BytesCodec{}, hhchan.WithMemCapacity(256))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tx, rx
}

func spillFactory(t *testing.T) (*hhchan.Sender[[]byte], *hhchan.Receiver[[]byte]) {
	tx, rx, err := hhchan.New(t.Name(), t.TempDir(), hhchan.BytesCodec{}, hhchan.WithMemCapacity(4))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tx, rx
}

func tinySegmentFactory(t *testing.T) (*hhchan.Sender[[]byte], *hhchan.Receiver[[]byte]) {
	tx, rx, err := hhchan.New(t.Name(), t.TempDir(), hhchan.BytesCodec{},
		hhchan.WithMemCapacity(2), hhchan.WithSegmentMaxBytes(128))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return tx, rx
}

func TestFIFOAcrossConfigurations(t *testing.T) {
	configs := map[string]hhchantest.Factory{
		"memory-only":  memoryOnlyFactory,
		"spill-to-disk": spillFactory,
		"tiny-segments": tinySegmentFactory,
	}
	for name, factory := range configs {
		t.Run(name, func(t *testing.T) {
			hhchantest.RunFIFO(t, 200, factory)
		})
	}
}

func TestMultiProducerAcrossConfigurations(t *testing.T) {
	configs := map[string]hhchantest.Factory{
		"memory-only":  memoryOnlyFactory,
		"spill-to-disk": spillFactory,
	}
	for name, factory := range configs {
		t.Run(name, func(t *testing.T) {
			hhchantest.RunMultiProducer(t, 6, 50, factory)
		})
	}
}
