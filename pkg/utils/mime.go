// Copyright 2026 fanjia1024
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

package utils

import "strings"

// mimeByExt 扩展名到 MIME 的静态表；不做内容嗅探
var mimeByExt = map[string]string{
	// 文档
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"md":   "text/markdown",
	"html": "text/html",
	"htm":  "text/html",
	"rtf":  "application/rtf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",

	// 表格
	"csv":  "text/csv",
	"tsv":  "text/tab-separated-values",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",

	// 图片
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"bmp":  "image/bmp",

	// 代码与结构化文本
	"json": "application/json",
	"xml":  "application/xml",
	"yaml": "application/x-yaml",
	"yml":  "application/x-yaml",
	"go":   "text/x-go",
	"py":   "text/x-python",
	"js":   "text/javascript",
	"ts":   "text/typescript",
	"java": "text/x-java-source",
	"c":    "text/x-c",
	"cpp":  "text/x-c++",
	"h":    "text/x-c",
	"sh":   "text/x-shellscript",
	"sql":  "application/sql",

	// 压缩包
	"zip": "application/zip",
	"tar": "application/x-tar",
	"gz":  "application/gzip",
	"7z":  "application/x-7z-compressed",
	"rar": "application/vnd.rar",
}

// MIMETypeFor 根据文件名扩展（最后一个 . 之后，小写）返回 MIME；
// 无扩展或未知扩展回退 application/octet-stream。
func MIMETypeFor(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return "application/octet-stream"
	}
	ext := strings.ToLower(filename[idx+1:])
	if mime, ok := mimeByExt[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}
