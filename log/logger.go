// Copyright 2022-2026 The ledgerstore Authors
// This file is part of the ledgerstore library.
//
// The ledgerstore library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ledgerstore library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ledgerstore library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// logger carries an immutable key/value context and writes through the
// shared logrus instance. New(ctx...) returns a child with ctx appended,
// the same pattern as go-ethereum/erigon-lineage loggers.
type logger struct {
	ctx     []interface{}
	mapPool sync.Pool
}

var levelToLogrus = map[Lvl]logrus.Level{
	LvlCrit:  logrus.FatalLevel,
	LvlFatal: logrus.FatalLevel,
	LvlError: logrus.ErrorLevel,
	LvlWarn:  logrus.WarnLevel,
	LvlInfo:  logrus.InfoLevel,
	LvlDebug: logrus.DebugLevel,
	LvlTrace: logrus.TraceLevel,
}

func (l *logger) New(ctx ...interface{}) Logger {
	child := &logger{
		ctx: append(append([]interface{}{}, l.ctx...), ctx...),
		mapPool: sync.Pool{New: func() any {
			return map[string]interface{}{}
		}},
	}
	return child
}

func (l *logger) write(msg string, lvl Lvl, ctx []interface{}, skip int) {
	fields := l.fields(ctx)
	entry := terminal.WithFields(fields)
	entry.Log(levelToLogrus[lvl], msg)
}

// fields flattens the logger's own context plus the call-site context into
// a logrus.Fields map, tolerating an odd key without a trailing value.
func (l *logger) fields(ctx []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	merge := func(kv []interface{}) {
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				continue
			}
			fields[key] = kv[i+1]
		}
	}
	merge(l.ctx)
	merge(ctx)
	return fields
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(msg, LvlTrace, ctx, skipLevel) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(msg, LvlDebug, ctx, skipLevel) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(msg, LvlInfo, ctx, skipLevel) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(msg, LvlWarn, ctx, skipLevel) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(msg, LvlError, ctx, skipLevel) }
func (l *logger) Crit(msg string, ctx ...interface{})  { l.write(msg, LvlCrit, ctx, skipLevel) }
