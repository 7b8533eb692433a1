/*
Copyright (C) 2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package reader

import (
	"time"

	"github.com/alephzero-go/a0/a0err"
	"github.com/alephzero-go/a0/arena"
	"github.com/alephzero-go/a0/transport"
)

// ReadOne attaches a transport to a and reads exactly one frame's payload
// per init; a itself is left open. If nonblocking is true and init is
// AwaitNew (or OLDEST on an empty arena), it fails immediately with
// a0err.Again rather than waiting.
func ReadOne(a *arena.Arena, init InitPolicy, nonblocking bool) ([]byte, error) {
	t, err := transport.Open(a)
	if err != nil {
		return nil, err
	}
	r, err := NewSync(t, init, Next)
	if err != nil {
		return nil, err
	}
	if nonblocking {
		ok, err := r.HasNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, a0err.Again
		}
		return r.Next()
	}
	return r.NextBlocking(time.Time{})
}
