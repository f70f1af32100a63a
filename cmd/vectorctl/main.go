// vectorctl 在命令行中完成上传、向量化、检索和令牌签发，使用与 HTTP 服务相同的配置和后端。
package main

func main() {
	Execute()
}
