// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package polling

import (
	"context"
	"testing"

	"github.com/ZaparooProject/go-ucx"
)

// BenchmarkSession_PollOnce measures one idle receive cycle with and
// without a URC waiting, in both URC modes.
func BenchmarkSession_PollOnce(b *testing.B) {
	cases := []struct {
		name string
		opts []ucx.Option
		urc  bool
	}{
		{name: "direct_idle"},
		{name: "direct_urc", urc: true},
		{name: "queue_urc", opts: []ucx.Option{ucx.WithURCQueue(8, ucx.DropOldest)}, urc: true},
	}

	for _, bc := range cases {
		b.Run(bc.name, func(b *testing.B) {
			mock := ucx.NewMockTransport()
			client, err := ucx.New(mock, append(bc.opts, ucx.WithReadTimeout(1))...)
			if err != nil {
				b.Fatalf("failed to create client: %v", err)
			}
			defer func() { _ = client.Close() }()
			client.RegisterURC("+UESPIC", func(string, []byte) {})

			s := NewSession(client, DefaultConfig())
			ctx := context.Background()
			line := []byte("\r\n+UESPIC:0,1\r\n")

			b.ReportAllocs()
			b.ResetTimer()
			for range b.N {
				if bc.urc {
					mock.Inject(line)
				}
				if err := s.pollOnce(ctx); err != nil {
					b.Fatalf("poll failed: %v", err)
				}
			}
		})
	}
}
