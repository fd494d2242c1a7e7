// Copyright 2026 The OpenTrusty Authors
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

package logger

import "log/slog"

// Attribute keys shared by every component so log queries can join on them.
const (
	keyEnterprise  = "enterprise_customer_uuid"
	keyCourseRun   = "course_run_key"
	keyFulfillment = "fulfillment_uuid"
	keyLicense     = "license_uuid"
	keyChannel     = "channel_code"
)

// Common fields.

func RequestID(id string) slog.Attr { return slog.String("request_id", id) }
func Method(method string) slog.Attr { return slog.String("method", method) }
func Path(path string) slog.Attr { return slog.String("path", path) }
func RemoteAddr(addr string) slog.Attr { return slog.String("remote_addr", addr) }
func UserAgent(ua string) slog.Attr { return slog.String("user_agent", ua) }
func StatusCode(code int) slog.Attr { return slog.Int("status_code", code) }
func Duration(ms int64) slog.Attr { return slog.Int64("duration_ms", ms) }
func UserID(id int64) slog.Attr { return slog.Int64("user_id", id) }
func Email(email string) slog.Attr { return slog.String("email", email) }
func Component(name string) slog.Attr { return slog.String("component", name) }
func Operation(op string) slog.Attr { return slog.String("operation", op) }
func Count(key string, n int) slog.Attr { return slog.Int(key, n) }
func String(key, v string) slog.Attr { return slog.String(key, v) }

// EnterpriseID tags a record with the owning customer.
func EnterpriseID(uuid string) slog.Attr { return slog.String(keyEnterprise, uuid) }

// CourseRunKey tags a record with a course run such as course-v1:Org+C+Run.
func CourseRunKey(key string) slog.Attr { return slog.String(keyCourseRun, key) }

func FulfillmentUUID(uuid string) slog.Attr { return slog.String(keyFulfillment, uuid) }
func LicenseUUID(uuid string) slog.Attr { return slog.String(keyLicense, uuid) }
func ChannelCode(code string) slog.Attr { return slog.String(keyChannel, code) }

// Error renders err as a string attribute. A nil error yields an empty value
// so call sites can pass results through unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
