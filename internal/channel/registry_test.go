package channel_test

import (
	"context"
	"testing"

	"github.com/memohai/relay/internal/channel"
)

const testChannelType = channel.ChannelType("test-channel")

// metaOnlyAdapter implements Adapter without Sender.
type metaOnlyAdapter struct {
	ct channel.ChannelType
}

func (a *metaOnlyAdapter) Type() channel.ChannelType { return a.ct }

func (a *metaOnlyAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{Type: a.ct, DisplayName: "MetaOnly"}
}

type sendingAdapter struct {
	metaOnlyAdapter
}

func (a *sendingAdapter) Deliver(ctx context.Context, resp channel.Response, to channel.Recipient) []channel.Outcome {
	return nil
}

func TestRegistryRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	if err := reg.Register(&metaOnlyAdapter{ct: testChannelType}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.Register(&metaOnlyAdapter{ct: "TEST-CHANNEL"}); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := reg.Register(nil); err == nil {
		t.Fatal("expected nil adapter to fail")
	}
	if err := reg.Register(&metaOnlyAdapter{ct: "  "}); err == nil {
		t.Fatal("expected empty channel type to fail")
	}
}

func TestRegistryGetNormalizesType(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(&metaOnlyAdapter{ct: testChannelType})
	if _, ok := reg.Get(" Test-Channel "); !ok {
		t.Fatal("expected lookup to normalize case and spaces")
	}
	if !reg.Unregister(testChannelType) {
		t.Fatal("expected unregister to succeed")
	}
	if _, ok := reg.Get(testChannelType); ok {
		t.Fatal("expected adapter to be gone")
	}
}

func TestRegistryGetSender(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(&metaOnlyAdapter{ct: "meta"})
	reg.MustRegister(&sendingAdapter{metaOnlyAdapter{ct: "sending"}})

	if sender, ok := reg.GetSender("meta"); ok || sender != nil {
		t.Fatalf("GetSender(meta) = (%v, %v), want (nil, false)", sender, ok)
	}
	if sender, ok := reg.GetSender("sending"); !ok || sender == nil {
		t.Fatalf("GetSender(sending) = (%v, %v), want (non-nil, true)", sender, ok)
	}
	if _, ok := reg.GetSender("missing"); ok {
		t.Fatal("expected unknown channel to have no sender")
	}
}

func TestRegistryParseChannelType(t *testing.T) {
	t.Parallel()

	reg := channel.NewRegistry()
	reg.MustRegister(&metaOnlyAdapter{ct: testChannelType})
	ct, err := reg.ParseChannelType("TEST-channel")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct != testChannelType {
		t.Fatalf("unexpected channel type: %s", ct)
	}
	if _, err := reg.ParseChannelType("nope"); err == nil {
		t.Fatal("expected unregistered channel to fail")
	}
	descs := reg.ListDescriptors()
	if len(descs) != 1 || descs[0].DisplayName != "MetaOnly" {
		t.Fatalf("unexpected descriptors: %+v", descs)
	}
}
